package application

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/finalization"
	"github.com/ftso-network/ftso/pkg/median"
	"github.com/ftso-network/ftso/pkg/merkle"
	"github.com/ftso-network/ftso/pkg/rewards"
	log "github.com/sirupsen/logrus"
)

// startRound commits for the given round and reveals for the previous one.
// Reveals for the previous round are accepted until the reveal deadline of
// this round, after which the previous round gets aggregated.
func (s *service) startRound(round uint64) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	s.metrics.CurrentRound.Set(float64(round))

	s.scheduleAt(s.clock.RoundStart(round+1), func() { s.startRound(round + 1) })
	s.prune(round)

	log.WithField("round", round).Debug("started round")

	s.roundLanes.dispatch(s.ctx, round, func() { s.commit(round) })
	if round <= 0 {
		return
	}

	previous := round - 1
	s.roundLanes.dispatch(s.ctx, previous, func() { s.reveal(previous) })
	s.scheduleAt(s.clock.RevealDeadline(round), func() {
		s.roundLanes.dispatch(s.ctx, previous, func() { s.aggregate(previous) })
	})
}

func (s *service) commit(round uint64) {
	prices, err := s.priceFeed.GetPrices(s.ctx, round, s.feeds)
	if err != nil {
		log.WithError(err).Warnf("failed to get prices for round %d, skipping commit", round)
		return
	}
	if len(prices) != len(s.feeds) {
		log.Warnf(
			"price feed returned %d prices for %d feeds, skipping commit of round %d",
			len(prices), len(s.feeds), round,
		)
		return
	}

	random, err := randomValue()
	if err != nil {
		log.WithError(err).Warnf("failed to generate random for round %d, skipping commit", round)
		return
	}
	commitHash := codec.CommitHash(s.signer.Address(), random, codec.PackPrices(prices))

	r := s.getOrCreateRound(round)
	events, err := r.Commit(commitHash, prices)
	if err != nil {
		log.WithError(err).Warnf("failed to commit prices for round %d", round)
		return
	}
	if err := s.liveStore.OwnReveals().Set(round, domain.OwnReveal{
		Random: random,
		Prices: prices,
	}); err != nil {
		log.WithError(err).Warnf("failed to store reveal data for round %d, skipping commit", round)
		return
	}
	s.saveEvents(r, events)

	s.metrics.Submissions.WithLabelValues("commit").Inc()
	if err := s.sink.SubmitCommit(s.ctx, round, commitHash); err != nil {
		s.submissionFailed("submit commit", round, err)
		return
	}
	log.WithField("round", round).Debugf("committed prices with hash %s", commitHash.Hex())
}

func (s *service) reveal(round uint64) {
	own, err := s.liveStore.OwnReveals().Get(round)
	if err != nil || own == nil {
		log.WithField("round", round).Debug("nothing to reveal")
		return
	}

	r := s.getRound(round)
	if r == nil {
		log.Debugf("round %d not found, skipping reveal", round)
		return
	}
	events, err := r.Reveal()
	if err != nil {
		log.WithError(err).Warnf("failed to reveal prices for round %d", round)
		return
	}
	s.saveEvents(r, events)

	s.metrics.Submissions.WithLabelValues("reveal").Inc()
	if err := s.sink.SubmitReveal(s.ctx, round, own.Random, codec.PackPrices(own.Prices)); err != nil {
		s.submissionFailed("submit reveal", round, err)
		return
	}
	log.WithField("round", round).Debug("revealed prices")
}

// aggregate computes the median results of the round from the reveals that
// match their commit, processes the reward claims of the round, and signs the
// merkle root of the results. Claims are processed even when the round has
// no valid reveal, so that reward rounds stay in sequence.
func (s *service) aggregate(round uint64) {
	start := time.Now()
	r := s.getOrCreateRound(round)
	rewardEpoch := s.clock.RewardEpochId(round)

	weights, err := s.weights.GetWeights(s.ctx, rewardEpoch)
	if err != nil {
		log.WithError(err).Warnf("failed to get weights for reward epoch %d", rewardEpoch)
		weights = nil
	}

	aggregation, aggErr := s.computeResults(round, weights)
	if !s.processRewards(round, weights, aggregation) {
		return
	}

	if aggErr != nil {
		var insufficientErr domain.InsufficientDataError
		reason := "error"
		if errors.As(aggErr, &insufficientErr) {
			reason = "insufficient_data"
		}
		s.metrics.RoundsSkipped.WithLabelValues(reason).Inc()
		log.WithError(aggErr).Warnf("skipping round %d", round)
		s.saveEvents(r, r.Fail(aggErr))
		return
	}

	tree := merkle.New(aggregation.leaves(round))
	root, _ := tree.Root()

	events, err := r.Aggregate(
		len(aggregation.valid), len(aggregation.failed), root,
		aggregation.random, aggregation.secure,
	)
	if err != nil {
		log.WithError(err).Warnf("failed to aggregate round %d", round)
		return
	}
	s.saveEvents(r, events)

	if err := s.repoManager.Results().AddRoundResults(s.ctx, aggregation.roundResults(round, root)); err != nil {
		log.WithError(err).Warnf("failed to store results of round %d", round)
	}
	s.metrics.AggregationLatency.Observe(time.Since(start).Seconds())
	s.metrics.RoundsAggregated.Inc()
	log.WithField("round", round).Infof(
		"aggregated %d reveals (%d failed) into root %s", len(aggregation.valid), len(aggregation.failed), root.Hex(),
	)

	s.signRoot(r, root)
}

func (s *service) signRoot(r *domain.Round, root common.Hash) {
	round := r.Epoch
	signature, err := s.signer.SignHash(root)
	if err != nil {
		log.WithError(err).Warnf("failed to sign merkle root of round %d", round)
		return
	}
	events, err := r.Sign(signature)
	if err != nil {
		log.WithError(err).Warnf("failed to sign round %d", round)
		return
	}
	s.saveEvents(r, events)

	s.metrics.Submissions.WithLabelValues("signature").Inc()
	if err := s.sink.SubmitSignature(s.ctx, round, root, signature); err != nil {
		s.submissionFailed("submit signature", round, err)
	}

	if _, err := s.roundFinalizer.OnSignature(s.ctx, finalization.SignatureRecord{
		Id:         round,
		Root:       root,
		Signature:  signature,
		ObservedAt: time.Now(),
	}); err != nil {
		log.WithError(err).Warnf("failed to count own signature for round %d", round)
	}
}

// processRewards computes the reward claims of the round. It returns false
// if the node has to stop.
func (s *service) processRewards(
	round uint64, weights map[common.Address]amount.Amount, aggregation *roundAggregation,
) bool {
	finalizer, signers, err := s.previousFinalization(round)
	if err != nil {
		s.fatal(err)
		return false
	}

	data := rewards.RoundData{
		Round:             round,
		Weights:           weights,
		PreviousFinalizer: finalizer,
		PreviousSigners:   signers,
	}
	if aggregation != nil {
		data.Results = aggregation.results
		data.FailedReveals = aggregation.failed
	}

	if err := s.closeOfferWindow(round); err != nil {
		s.fatal(err)
		return false
	}
	claims, err := s.rewards.ProcessRound(data)
	if err != nil {
		if domain.IsFatal(err) {
			s.fatal(err)
			return false
		}
		log.WithError(err).Warnf("failed to process rewards of round %d", round)
		return true
	}
	s.metrics.LastProcessedRound.Set(float64(round))
	log.WithField("round", round).Debugf("computed %d reward claims", len(claims))

	if s.clock.IsLastRoundOfRewardEpoch(round) {
		rewardEpoch := s.clock.RewardEpochId(round)
		s.epochLanes.dispatch(s.ctx, rewardEpoch, func() { s.signRewardEpoch(rewardEpoch) })
	}
	return true
}

// collectOffers buffers the offers of a reward epoch. An epoch may get offers
// from several transactions, they are registered together once its first
// rewarded round is processed.
func (s *service) collectOffers(e domain.RewardOffersObserved) {
	s.offersLock.Lock()
	defer s.offersLock.Unlock()

	if s.rewards.HasOffers(e.RewardEpoch) {
		log.Warnf(
			"dropping %d reward offers for reward epoch %d, offers already registered",
			len(e.Offers), e.RewardEpoch,
		)
		return
	}
	s.pendingOffers[e.RewardEpoch] = append(s.pendingOffers[e.RewardEpoch], e.Offers...)
	log.Infof("collected %d reward offers for reward epoch %d", len(e.Offers), e.RewardEpoch)
}

// closeOfferWindow registers the offers collected for the reward epoch of the
// round, if not done yet.
func (s *service) closeOfferWindow(round uint64) error {
	if round < s.clock.Config().FirstRewardedRound {
		return nil
	}
	rewardEpoch := s.clock.RewardEpochId(round)

	s.offersLock.Lock()
	defer s.offersLock.Unlock()

	if s.rewards.HasOffers(rewardEpoch) {
		return nil
	}
	offers := s.pendingOffers[rewardEpoch]
	if err := s.rewards.RegisterOffers(rewardEpoch, offers); err != nil {
		return err
	}
	for epoch := range s.pendingOffers {
		if epoch <= rewardEpoch {
			delete(s.pendingOffers, epoch)
		}
	}
	log.Infof("registered %d reward offers for reward epoch %d", len(offers), rewardEpoch)
	return nil
}

// previousFinalization waits for the round before the given one to be
// processed by the reward engine and finalized on chain. A finalization that
// never shows up is fine unless the chain says the round is finalized, which
// means the node missed the event.
func (s *service) previousFinalization(round uint64) (*common.Address, []common.Address, error) {
	if round <= 0 {
		return nil, nil, nil
	}
	previous := round - 1
	deadline := time.Unix(int64(s.clock.RevealDeadline(round+1)), 0)

	if err := awaitCondition(
		s.ctx, fmt.Sprintf("rewards of round %d", previous), deadline, s.finalizationGrace, s.pollInterval,
		func() bool {
			last, ok := s.rewards.LastProcessedRound()
			return !ok || last >= previous
		},
	); err != nil {
		log.WithError(err).Warnf("rewards of round %d not processed yet", previous)
	}

	err := awaitCondition(
		s.ctx, fmt.Sprintf("finalization of round %d", previous), deadline, s.finalizationGrace, s.pollInterval,
		func() bool {
			_, ok := s.roundFinalizer.Finalized(previous)
			return ok
		},
	)
	if err != nil {
		var timeoutErr domain.TimeoutError
		if !errors.As(err, &timeoutErr) {
			return nil, nil, nil
		}
		finalized, chainErr := s.chain.IsFinalized(s.ctx, previous)
		if chainErr != nil {
			log.WithError(chainErr).Warnf("failed to check finalization of round %d on chain", previous)
		}
		if finalized {
			return nil, nil, domain.UnobservedFinalizationError{Round: previous}
		}
		log.WithError(err).Warnf("round %d not finalized, its finalizer gets no reward", previous)
		return nil, nil, nil
	}

	record, _ := s.roundFinalizer.Finalized(previous)
	finalizer := record.Finalizer
	return &finalizer, s.qualifyingSigners(previous, record.Root), nil
}

// qualifyingSigners returns the signers of the finalized root of the round.
func (s *service) qualifyingSigners(round uint64, root common.Hash) []common.Address {
	if quorum, ok := s.roundFinalizer.Quorum(round); ok && quorum.Root == root {
		return quorum.Signers
	}

	records, err := s.liveStore.Signatures().Get(round)
	if err != nil {
		log.WithError(err).Warnf("failed to get signatures of round %d", round)
		return nil
	}
	seen := make(map[common.Address]struct{})
	signers := make([]common.Address, 0, len(records))
	for _, record := range records {
		if record.Root != root {
			continue
		}
		signer, err := s.recoverer.RecoverSigner(record.Root, record.Signature)
		if err != nil {
			continue
		}
		if _, ok := seen[signer]; ok {
			continue
		}
		seen[signer] = struct{}{}
		signers = append(signers, signer)
	}
	return signers
}

func (s *service) signRewardEpoch(rewardEpoch uint64) {
	claims := s.rewards.Cumulative(rewardEpoch)
	for _, c := range claims {
		if c.Type == rewards.ClaimTypePenalty {
			log.Warnf("reward epoch %d closes with unabsorbed penalty %s", rewardEpoch, c)
		}
	}

	tree, leafClaims := rewardClaimTree(rewardEpoch, claims)
	if tree == nil {
		log.Infof("no reward claims for reward epoch %d", rewardEpoch)
		return
	}
	root, _ := tree.Root()

	if err := s.repoManager.Claims().AddRewardClaims(s.ctx, domain.RewardClaims{
		RewardEpoch: rewardEpoch,
		MerkleRoot:  root,
		Claims:      claims,
	}); err != nil {
		log.WithError(err).Warnf("failed to store claims of reward epoch %d", rewardEpoch)
	}

	signature, err := s.signer.SignHash(root)
	if err != nil {
		log.WithError(err).Warnf("failed to sign reward root of reward epoch %d", rewardEpoch)
		return
	}
	s.metrics.Submissions.WithLabelValues("reward_signature").Inc()
	if err := s.sink.SubmitRewardSignature(s.ctx, rewardEpoch, root, signature); err != nil {
		s.submissionFailed("submit reward signature", rewardEpoch, err)
	}
	if _, err := s.rewardFinalizer.OnSignature(s.ctx, finalization.SignatureRecord{
		Id:         rewardEpoch,
		Root:       root,
		Signature:  signature,
		ObservedAt: time.Now(),
	}); err != nil {
		log.WithError(err).Warnf("failed to count own signature for reward epoch %d", rewardEpoch)
	}
	log.Infof(
		"signed reward root %s of reward epoch %d over %d claims", root.Hex(), rewardEpoch, len(leafClaims),
	)
}

// prune drops the state of the rounds that fell out of the retention window.
func (s *service) prune(current uint64) {
	if current <= s.retainRounds {
		return
	}
	below := current - s.retainRounds

	s.roundLanes.prune(below)
	s.roundFinalizer.Prune(below)

	s.lock.Lock()
	for round := range s.rounds {
		if round < below {
			delete(s.rounds, round)
		}
	}
	s.lock.Unlock()

	stale := below - 1
	if err := s.liveStore.Commits().Delete(stale); err != nil {
		log.WithError(err).Debugf("failed to delete commits of round %d", stale)
	}
	if err := s.liveStore.Reveals().Delete(stale); err != nil {
		log.WithError(err).Debugf("failed to delete reveals of round %d", stale)
	}
	if err := s.liveStore.OwnReveals().Delete(stale); err != nil {
		log.WithError(err).Debugf("failed to delete reveal data of round %d", stale)
	}
	if err := s.liveStore.Signatures().Delete(stale); err != nil {
		log.WithError(err).Debugf("failed to delete signatures of round %d", stale)
	}

	if epoch := s.clock.RewardEpochId(below); epoch >= 2 {
		s.epochLanes.prune(epoch - 1)
		s.rewardFinalizer.Prune(epoch - 1)
	}

	s.metrics.ActiveLanes.WithLabelValues("round").Set(float64(s.roundLanes.count()))
	s.metrics.ActiveLanes.WithLabelValues("reward_epoch").Set(float64(s.epochLanes.count()))
}

// rewardClaimTree builds the claim tree of a reward epoch over its fixed and
// weighted claims in canonical order. Penalty claims are not claimable.
func rewardClaimTree(rewardEpoch uint64, claims []rewards.Claim) (*merkle.Tree, []rewards.Claim) {
	leafClaims := make([]rewards.Claim, 0, len(claims))
	for _, c := range claims {
		switch c.Type {
		case rewards.ClaimTypeFixed, rewards.ClaimTypeWeighted:
			leafClaims = append(leafClaims, c)
		case rewards.ClaimTypePenalty:
		}
	}
	if len(leafClaims) <= 0 {
		return nil, nil
	}
	rewards.SortClaims(leafClaims)

	leaves := make([]common.Hash, 0, len(leafClaims))
	for _, c := range leafClaims {
		leaves = append(leaves, rewardClaimLeaf(rewardEpoch, c))
	}
	return merkle.New(leaves), leafClaims
}

func rewardClaimLeaf(rewardEpoch uint64, c rewards.Claim) common.Hash {
	return codec.RewardClaimLeaf(rewardEpoch, c.Beneficiary, c.Currency, c.Amount, uint8(c.Type))
}

func randomValue() (amount.Amount, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return amount.Amount{}, err
	}
	return amount.FromBytes32(buf), nil
}

// roundAggregation is the outcome of a round's reveals.
type roundAggregation struct {
	feeds   []codec.Feed
	valid   []common.Address
	failed  []common.Address
	results map[string]*median.Result
	random  amount.Amount
	secure  bool
}

// computeResults validates every reveal of the round against its commit and
// computes the median of each feed over the valid ones. Voters that
// committed without a valid reveal are returned as failed even when the round
// has not enough data.
func (s *service) computeResults(
	round uint64, weights map[common.Address]amount.Amount,
) (*roundAggregation, error) {
	commits, err := s.liveStore.Commits().Get(round)
	if err != nil {
		return nil, fmt.Errorf("failed to get commits: %s", err)
	}
	reveals, err := s.liveStore.Reveals().Get(round)
	if err != nil {
		return nil, fmt.Errorf("failed to get reveals: %s", err)
	}

	aggregation := &roundAggregation{
		feeds:   s.feeds,
		valid:   make([]common.Address, 0),
		failed:  make([]common.Address, 0),
		results: make(map[string]*median.Result),
		random:  amount.Zero(),
	}

	prices := make(map[common.Address][]uint32)
	for _, voter := range sortedVoters(commits) {
		reveal, ok := reveals[voter]
		if !ok || !codec.ValidateReveal(commits[voter], voter, reveal.Random, reveal.PackedPrices) {
			aggregation.failed = append(aggregation.failed, voter)
			continue
		}
		unpacked, err := codec.UnpackPrices(reveal.PackedPrices)
		if err != nil || len(unpacked) != len(s.feeds) {
			aggregation.failed = append(aggregation.failed, voter)
			continue
		}
		aggregation.random = aggregation.random.WrappingAdd(reveal.Random)
		aggregation.valid = append(aggregation.valid, voter)
		prices[voter] = unpacked
	}
	s.metrics.FailedReveals.Add(float64(len(aggregation.failed)))
	aggregation.secure = len(aggregation.valid) > 0 && len(aggregation.failed) <= 0

	voters := make([]common.Address, 0, len(aggregation.valid))
	for _, voter := range aggregation.valid {
		if w := weights[voter]; !w.IsZero() {
			voters = append(voters, voter)
		}
	}
	if len(voters) <= 0 {
		return aggregation, domain.InsufficientDataError{Round: round}
	}

	for i, feed := range s.feeds {
		feedPrices := make([]uint32, 0, len(voters))
		feedWeights := make([]amount.Amount, 0, len(voters))
		for _, voter := range voters {
			feedPrices = append(feedPrices, prices[voter][i])
			feedWeights = append(feedWeights, weights[voter])
		}
		result, err := median.Calculate(round, feed, voters, feedPrices, feedWeights)
		if err != nil {
			return aggregation, fmt.Errorf("failed to compute median of %s: %w", feed.Id(), err)
		}
		aggregation.results[feed.Id()] = result
	}
	return aggregation, nil
}

// leaves are the bulk prices leaf, one leaf per feed in feed order and the
// random leaf.
func (a *roundAggregation) leaves(round uint64) []common.Hash {
	medians := make([]uint32, 0, len(a.feeds))
	for _, feed := range a.feeds {
		medians = append(medians, a.results[feed.Id()].FinalMedianPrice)
	}

	leaves := make([]common.Hash, 0, len(a.feeds)+2)
	leaves = append(leaves, codec.BulkPricesLeaf(round, codec.PackPrices(medians)))
	for i, feed := range a.feeds {
		leaves = append(leaves, codec.FeedPriceLeaf(round, feed, medians[i]))
	}
	leaves = append(leaves, codec.RandomLeaf(round, a.random, a.secure))
	return leaves
}

func (a *roundAggregation) roundResults(round uint64, root common.Hash) domain.RoundResults {
	results := domain.RoundResults{
		Round:        round,
		Results:      make([]domain.FeedResult, 0, len(a.feeds)),
		Random:       a.random,
		SecureRandom: a.secure,
		MerkleRoot:   root,
	}
	for _, feed := range a.feeds {
		results.Results = append(results.Results, domain.NewFeedResult(a.results[feed.Id()]))
	}
	return results
}

func sortedVoters(commits map[common.Address]common.Hash) []common.Address {
	voters := make([]common.Address, 0, len(commits))
	for voter := range commits {
		voters = append(voters, voter)
	}
	sortAddresses(voters)
	return voters
}
