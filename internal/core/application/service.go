package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/finalization"
	"github.com/ftso-network/ftso/pkg/rewards"
	"github.com/ftso-network/ftso/pkg/roundclock"
	log "github.com/sirupsen/logrus"
)

type service struct {
	// services
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
	scheduler   ports.SchedulerService
	eventStream ports.EventStream
	weights     ports.WeightRegistry
	sink        ports.SubmissionSink
	chain       ports.ChainReader
	signer      ports.Signer
	priceFeed   ports.PriceFeed

	// engine
	clock           *roundclock.Clock
	rewards         *rewards.Engine
	roundFinalizer  *finalization.Aggregator
	rewardFinalizer *finalization.Aggregator
	recoverer       finalization.SignerRecoverer

	// config
	feeds             []codec.Feed
	finalizationGrace time.Duration
	retainRounds      uint64
	pollInterval      time.Duration
	onFatal           func(error)

	roundLanes *laneSet
	epochLanes *laneSet
	metrics    *nodeMetrics

	lock   sync.RWMutex
	rounds map[uint64]*domain.Round

	offersLock    sync.Mutex
	pendingOffers map[uint64][]rewards.Offer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	cfg Config,
	repoManager ports.RepoManager, liveStore ports.LiveStore,
	scheduler ports.SchedulerService, eventStream ports.EventStream,
	weights ports.WeightRegistry, sink ports.SubmissionSink,
	chain ports.ChainReader, signer ports.Signer, priceFeed ports.PriceFeed,
) (Service, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("missing round clock")
	}
	if len(cfg.Feeds) <= 0 {
		return nil, fmt.Errorf("missing feeds")
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if liveStore == nil {
		return nil, fmt.Errorf("missing live store")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if eventStream == nil {
		return nil, fmt.Errorf("missing event stream")
	}
	if weights == nil {
		return nil, fmt.Errorf("missing weight registry")
	}
	if sink == nil {
		return nil, fmt.Errorf("missing submission sink")
	}
	if chain == nil {
		return nil, fmt.Errorf("missing chain reader")
	}
	if signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	if priceFeed == nil {
		return nil, fmt.Errorf("missing price feed")
	}

	if cfg.RewardParams == (rewards.Params{}) {
		cfg.RewardParams = rewards.DefaultParams()
	}
	if cfg.ThresholdBips == 0 {
		cfg.ThresholdBips = finalization.BipsDenominator / 2
	}
	if cfg.FinalizationGrace <= 0 {
		cfg.FinalizationGrace = defaultFinalizationGrace
	}
	if cfg.RetainRounds == 0 {
		cfg.RetainRounds = defaultRetainRounds
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Recoverer == nil {
		cfg.Recoverer = finalization.EcdsaRecoverer{}
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = func(err error) {
			log.WithError(err).Fatal("stopping node, accumulated state can't be trusted anymore")
		}
	}

	rewardEngine, err := rewards.NewEngine(cfg.Clock, cfg.RewardParams)
	if err != nil {
		return nil, fmt.Errorf("invalid reward params: %s", err)
	}

	roundFinalizer, err := finalization.New(finalization.Config{
		Scope:         finalization.ScopePriceEpoch,
		Recoverer:     cfg.Recoverer,
		Weights:       weights,
		ThresholdBips: cfg.ThresholdBips,
		Sink:          finalizerFunc(sink.Finalize),
		RewardEpochOf: cfg.Clock.RewardEpochId,
	})
	if err != nil {
		return nil, err
	}
	rewardFinalizer, err := finalization.New(finalization.Config{
		Scope:         finalization.ScopeRewardEpoch,
		Recoverer:     cfg.Recoverer,
		Weights:       weights,
		ThresholdBips: cfg.ThresholdBips,
		Sink:          finalizerFunc(sink.FinalizeRewards),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &service{
		repoManager:       repoManager,
		liveStore:         liveStore,
		scheduler:         scheduler,
		eventStream:       eventStream,
		weights:           weights,
		sink:              sink,
		chain:             chain,
		signer:            signer,
		priceFeed:         priceFeed,
		clock:             cfg.Clock,
		rewards:           rewardEngine,
		roundFinalizer:    roundFinalizer,
		rewardFinalizer:   rewardFinalizer,
		recoverer:         cfg.Recoverer,
		feeds:             append([]codec.Feed{}, cfg.Feeds...),
		finalizationGrace: cfg.FinalizationGrace,
		retainRounds:      cfg.RetainRounds,
		pollInterval:      cfg.PollInterval,
		onFatal:           cfg.OnFatal,
		roundLanes:        newLaneSet("round", defaultLaneSize),
		epochLanes:        newLaneSet("reward epoch", defaultLaneSize),
		metrics:           newNodeMetrics(),
		rounds:            make(map[uint64]*domain.Round),
		pendingOffers:     make(map[uint64][]rewards.Offer),
		ctx:               ctx,
		cancel:            cancel,
	}

	return svc, nil
}

func (s *service) Start() error {
	now, err := s.now()
	if err != nil {
		return fmt.Errorf("failed to get current time: %s", err)
	}
	current := s.clock.CurrentRound(now)

	log.Debug("starting event stream...")
	events, err := s.eventStream.Start(s.ctx, current-min(current, 2))
	if err != nil {
		return fmt.Errorf("failed to start event stream: %s", err)
	}

	s.wg.Add(1)
	go s.listenToEvents(events)

	log.Debug("starting scheduler...")
	s.scheduler.Start()

	log.Debugf("starting app service at round %d...", current)
	go s.startRound(current)
	return nil
}

func (s *service) Stop() {
	s.cancel()

	s.eventStream.Stop()
	log.Debug("stopped event stream")
	s.scheduler.Stop()
	log.Debug("stopped scheduler")

	s.roundLanes.close()
	s.epochLanes.close()
	s.wg.Wait()

	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) GetStatus(_ context.Context) (*Status, error) {
	now, err := s.now()
	if err != nil {
		return nil, fmt.Errorf("failed to get current time: %s", err)
	}
	current := s.clock.CurrentRound(now)

	status := &Status{
		Address:            s.signer.Address().Hex(),
		CurrentRound:       current,
		CurrentRewardEpoch: s.clock.RewardEpochId(current),
		Feeds:              make([]string, 0, len(s.feeds)),
	}
	if last, ok := s.rewards.LastProcessedRound(); ok {
		status.LastProcessedRound = &last
	}
	if watermark, ok := s.roundFinalizer.Watermark(); ok {
		status.RoundWatermark = &watermark
	}
	if watermark, ok := s.rewardFinalizer.Watermark(); ok {
		status.RewardWatermark = &watermark
	}
	for _, feed := range s.feeds {
		status.Feeds = append(status.Feeds, feed.Id())
	}
	return status, nil
}

func (s *service) GetRound(ctx context.Context, round uint64) (*domain.Round, error) {
	return s.repoManager.Rounds().GetRoundWithEpoch(ctx, round)
}

func (s *service) GetRoundResults(ctx context.Context, round uint64) (*domain.RoundResults, error) {
	return s.repoManager.Results().GetRoundResults(ctx, round)
}

func (s *service) GetFinalization(
	ctx context.Context, scope string, id uint64,
) (*domain.Finalization, error) {
	if scope != domain.FinalizationScopeRound && scope != domain.FinalizationScopeRewardEpoch {
		return nil, fmt.Errorf("invalid finalization scope %s", scope)
	}
	return s.repoManager.Results().GetFinalization(ctx, scope, id)
}

// GetClaims returns the claims of a reward epoch with their merkle proofs.
// Claims of a closed epoch come from the db, those of the running one are a
// snapshot of the cumulative claims so far.
func (s *service) GetClaims(
	ctx context.Context, rewardEpoch uint64, beneficiary *common.Address,
) (*ClaimsInfo, error) {
	var claims []rewards.Claim
	stored, err := s.repoManager.Claims().GetRewardClaims(ctx, rewardEpoch)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err == nil && stored != nil {
		claims = stored.Claims
	} else {
		claims = s.rewards.Cumulative(rewardEpoch)
		if len(claims) <= 0 {
			return nil, fmt.Errorf("claims of reward epoch %d: %w", rewardEpoch, domain.ErrNotFound)
		}
	}

	tree, leafClaims := rewardClaimTree(rewardEpoch, claims)
	info := &ClaimsInfo{
		RewardEpoch: rewardEpoch,
		Claims:      make([]ClaimWithProof, 0),
	}
	if tree != nil {
		info.MerkleRoot, _ = tree.Root()
	}

	proofs := make(map[common.Hash][]common.Hash)
	for _, c := range leafClaims {
		leaf := rewardClaimLeaf(rewardEpoch, c)
		proof, err := tree.Proof(leaf)
		if err != nil {
			return nil, err
		}
		proofs[leaf] = proof
	}

	for _, c := range claims {
		if beneficiary != nil && c.Beneficiary != *beneficiary {
			continue
		}
		item := ClaimWithProof{Claim: c}
		switch c.Type {
		case rewards.ClaimTypeFixed, rewards.ClaimTypeWeighted:
			item.Proof = proofs[rewardClaimLeaf(rewardEpoch, c)]
		case rewards.ClaimTypePenalty:
		}
		info.Claims = append(info.Claims, item)
	}
	return info, nil
}

func (s *service) listenToEvents(events <-chan domain.ProtocolEvent) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				log.Debug("event stream closed")
				return
			}
			s.dispatchEvent(event)
		}
	}
}

func (s *service) dispatchEvent(event domain.ProtocolEvent) {
	s.metrics.EventsObserved.WithLabelValues(fmt.Sprintf("%T", event)).Inc()

	lanes := s.roundLanes
	handler := s.handleRoundEvent
	if event.Scope() == domain.ScopeRewardEpoch {
		lanes = s.epochLanes
		handler = s.handleRewardEvent
	}

	id := event.ScopeId()
	if ok := lanes.dispatch(s.ctx, id, func() { handler(event) }); !ok {
		log.Debugf("dropped %T for %s %d", event, event.Scope(), id)
	}
}

func (s *service) handleRoundEvent(event domain.ProtocolEvent) {
	switch e := event.(type) {
	case domain.CommitObserved:
		if err := s.liveStore.Commits().Set(e.Round, e.Voter, e.CommitHash); err != nil {
			log.WithError(err).Warnf("failed to store commit of %s for round %d", e.Voter.Hex(), e.Round)
		}
	case domain.RevealObserved:
		reveal := domain.Reveal{
			Voter:        e.Voter,
			Random:       e.Random,
			PackedPrices: e.PackedPrices,
			BitVote:      e.BitVote,
		}
		if err := s.liveStore.Reveals().Set(e.Round, reveal); err != nil {
			log.WithError(err).Warnf("failed to store reveal of %s for round %d", e.Voter.Hex(), e.Round)
		}
	case domain.SignatureObserved:
		s.onRoundSignature(e)
	case domain.FinalizationObserved:
		s.onRoundFinalization(e)
	default:
		log.Warnf("unexpected round event %T", event)
	}
}

func (s *service) handleRewardEvent(event domain.ProtocolEvent) {
	switch e := event.(type) {
	case domain.RewardOffersObserved:
		s.collectOffers(e)
	case domain.RewardSignatureObserved:
		if _, err := s.rewardFinalizer.OnSignature(s.ctx, finalization.SignatureRecord{
			Id:         e.RewardEpoch,
			Root:       e.Root,
			Signature:  e.Signature,
			ObservedAt: e.ObservedAt,
		}); err != nil {
			log.WithError(err).Debugf("dropping reward signature for reward epoch %d", e.RewardEpoch)
		}
	case domain.RewardFinalizationObserved:
		s.onRewardFinalization(e)
	default:
		log.Warnf("unexpected reward event %T", event)
	}
}

func (s *service) onRoundSignature(e domain.SignatureObserved) {
	record := domain.SignatureRecord{
		Root:       e.Root,
		Signature:  e.Signature,
		ObservedAt: e.ObservedAt.Unix(),
	}
	if err := s.liveStore.Signatures().Add(e.Round, record); err != nil {
		log.WithError(err).Warnf("failed to store signature for round %d", e.Round)
	}

	if _, err := s.roundFinalizer.OnSignature(s.ctx, finalization.SignatureRecord{
		Id:         e.Round,
		Root:       e.Root,
		Signature:  e.Signature,
		ObservedAt: e.ObservedAt,
	}); err != nil {
		log.WithError(err).Debugf("dropping signature for round %d", e.Round)
	}
}

func (s *service) onRoundFinalization(e domain.FinalizationObserved) {
	duplicated := s.roundFinalizer.OnFinalization(finalization.FinalizationRecord{
		Id:         e.Round,
		Root:       e.Root,
		Finalizer:  e.Finalizer,
		ObservedAt: e.ObservedAt,
	})
	if duplicated {
		return
	}
	s.metrics.Finalizations.WithLabelValues(domain.FinalizationScopeRound).Inc()
	if watermark, ok := s.roundFinalizer.Watermark(); ok {
		s.metrics.RoundWatermark.Set(float64(watermark))
	}

	if err := s.repoManager.Results().AddFinalization(s.ctx, domain.Finalization{
		Scope:     domain.FinalizationScopeRound,
		Id:        e.Round,
		Root:      e.Root,
		Finalizer: e.Finalizer,
		Timestamp: e.ObservedAt.Unix(),
	}); err != nil {
		log.WithError(err).Warnf("failed to store finalization of round %d", e.Round)
	}

	round := s.getRound(e.Round)
	if round == nil {
		log.Debugf("round %d finalized on root %s", e.Round, e.Root.Hex())
		return
	}
	events, err := round.EndFinalization(e.Root, e.Finalizer)
	if err != nil {
		log.WithError(err).Debugf("failed to end finalization of round %d", e.Round)
		return
	}
	s.saveEvents(round, events)

	if round.MerkleRoot != (common.Hash{}) && !round.MatchesFinalization() {
		log.Warnf(
			"round %d finalized on root %s, local root was %s",
			e.Round, e.Root.Hex(), round.MerkleRoot.Hex(),
		)
		return
	}
	log.Infof("round %d finalized on root %s by %s", e.Round, e.Root.Hex(), e.Finalizer.Hex())
}

func (s *service) onRewardFinalization(e domain.RewardFinalizationObserved) {
	duplicated := s.rewardFinalizer.OnFinalization(finalization.FinalizationRecord{
		Id:         e.RewardEpoch,
		Root:       e.Root,
		Finalizer:  e.Finalizer,
		ObservedAt: e.ObservedAt,
	})
	if duplicated {
		return
	}
	s.metrics.Finalizations.WithLabelValues(domain.FinalizationScopeRewardEpoch).Inc()

	if err := s.repoManager.Results().AddFinalization(s.ctx, domain.Finalization{
		Scope:     domain.FinalizationScopeRewardEpoch,
		Id:        e.RewardEpoch,
		Root:      e.Root,
		Finalizer: e.Finalizer,
		Timestamp: e.ObservedAt.Unix(),
	}); err != nil {
		log.WithError(err).Warnf("failed to store finalization of reward epoch %d", e.RewardEpoch)
	}
	log.Infof("reward epoch %d finalized on root %s", e.RewardEpoch, e.Root.Hex())
}

func (s *service) now() (time.Time, error) {
	if s.scheduler.Unit() == ports.ChainTime {
		return s.chain.LatestBlockTime(s.ctx)
	}
	return time.Now(), nil
}

// scheduleAt runs the task at the given unix time, or right away if that
// time has already passed.
func (s *service) scheduleAt(at uint64, task func()) {
	if !s.scheduler.AfterNow(int64(at)) {
		go task()
		return
	}
	if err := s.scheduler.ScheduleTaskOnce(int64(at), task); err != nil {
		log.WithError(err).Warnf("failed to schedule task at %d, running it now", at)
		go task()
	}
	s.metrics.ScheduledTasks.Set(float64(s.scheduler.Pending()))
}

func (s *service) fatal(err error) {
	log.WithError(err).Error("fatal error")
	s.onFatal(err)
}

func (s *service) getRound(round uint64) *domain.Round {
	s.lock.RLock()
	r, ok := s.rounds[round]
	s.lock.RUnlock()
	if ok {
		return r
	}

	r, err := s.repoManager.Rounds().GetRoundWithEpoch(s.ctx, round)
	if err != nil || r == nil {
		return nil
	}
	s.lock.Lock()
	s.rounds[round] = r
	s.lock.Unlock()
	return r
}

func (s *service) getOrCreateRound(round uint64) *domain.Round {
	if r := s.getRound(round); r != nil {
		return r
	}

	r := domain.NewRound(round, s.clock.RewardEpochId(round))
	events, err := r.StartCommit()
	if err != nil {
		log.WithError(err).Warnf("failed to start round %d", round)
	}
	s.saveEvents(r, events)

	s.lock.Lock()
	s.rounds[round] = r
	s.lock.Unlock()
	return r
}

func (s *service) saveEvents(round *domain.Round, events []domain.RoundEvent) {
	if len(events) <= 0 {
		return
	}
	if _, err := s.repoManager.Events().Save(s.ctx, round.Id, events...); err != nil {
		log.WithError(err).Warnf("failed to store new events of round %d", round.Epoch)
	}
}

func (s *service) submissionFailed(action string, round uint64, err error) {
	s.metrics.SubmissionFailures.WithLabelValues(action).Inc()
	log.WithError(domain.TransientSubmissionError{
		Action: action,
		Round:  round,
		Err:    err,
	}).Warn("submission rejected")
}

type finalizerFunc func(ctx context.Context, quorum finalization.Quorum) error

func (f finalizerFunc) Finalize(ctx context.Context, quorum finalization.Quorum) error {
	return f(ctx, quorum)
}
