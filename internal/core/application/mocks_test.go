package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/finalization"
	"github.com/stretchr/testify/mock"
)

type mockedSink struct {
	mock.Mock
}

func (m *mockedSink) SubmitCommit(ctx context.Context, round uint64, commitHash common.Hash) error {
	args := m.Called(ctx, round, commitHash)
	return args.Error(0)
}

func (m *mockedSink) SubmitReveal(
	ctx context.Context, round uint64, random amount.Amount, packedPrices []byte,
) error {
	args := m.Called(ctx, round, random, packedPrices)
	return args.Error(0)
}

func (m *mockedSink) SubmitSignature(
	ctx context.Context, round uint64, root common.Hash, signature []byte,
) error {
	args := m.Called(ctx, round, root, signature)
	return args.Error(0)
}

func (m *mockedSink) SubmitRewardSignature(
	ctx context.Context, rewardEpoch uint64, root common.Hash, signature []byte,
) error {
	args := m.Called(ctx, rewardEpoch, root, signature)
	return args.Error(0)
}

func (m *mockedSink) Finalize(ctx context.Context, quorum finalization.Quorum) error {
	args := m.Called(ctx, quorum)
	return args.Error(0)
}

func (m *mockedSink) FinalizeRewards(ctx context.Context, quorum finalization.Quorum) error {
	args := m.Called(ctx, quorum)
	return args.Error(0)
}

type mockedChain struct {
	mock.Mock
}

func (m *mockedChain) IsFinalized(ctx context.Context, round uint64) (bool, error) {
	args := m.Called(ctx, round)
	return args.Bool(0), args.Error(1)
}

func (m *mockedChain) LatestBlockTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

type staticWeights map[common.Address]amount.Amount

func (w staticWeights) GetWeights(_ context.Context, _ uint64) (map[common.Address]amount.Amount, error) {
	weights := make(map[common.Address]amount.Amount, len(w))
	for k, v := range w {
		weights[k] = v
	}
	return weights, nil
}

// fakeSigner signs with its own address so that addressRecoverer can tell
// who signed.
type fakeSigner struct {
	address common.Address
}

func (s fakeSigner) Address() common.Address { return s.address }

func (s fakeSigner) SignHash(_ common.Hash) ([]byte, error) {
	return s.address.Bytes(), nil
}

type addressRecoverer struct{}

func (addressRecoverer) RecoverSigner(_ common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	return common.BytesToAddress(signature), nil
}

type fakeScheduler struct {
	lock  sync.Mutex
	tasks map[int64]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: make(map[int64]func())}
}

func (s *fakeScheduler) Start()               {}
func (s *fakeScheduler) Stop()                {}
func (s *fakeScheduler) Unit() ports.TimeUnit { return ports.UnixTime }

func (s *fakeScheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.tasks)
}

func (s *fakeScheduler) AfterNow(expiry int64) bool {
	return expiry > time.Now().Unix()
}

func (s *fakeScheduler) ScheduleTaskOnce(at int64, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tasks[at] = task
	return nil
}

type fakeStream struct {
	events chan domain.ProtocolEvent
}

func (s *fakeStream) Start(_ context.Context, _ uint64) (<-chan domain.ProtocolEvent, error) {
	return s.events, nil
}

func (s *fakeStream) Stop() {}

type fixedPriceFeed struct {
	prices []uint32
}

func (f fixedPriceFeed) GetPrices(_ context.Context, _ uint64, feeds []codec.Feed) ([]uint32, error) {
	if len(f.prices) != len(feeds) {
		return nil, fmt.Errorf("expected %d feeds, got %d", len(f.prices), len(feeds))
	}
	return append([]uint32{}, f.prices...), nil
}

type fakeRepoManager struct {
	events  *fakeEventRepo
	rounds  *fakeRoundRepo
	results *fakeResultRepo
	claims  *fakeClaimRepo
}

func newFakeRepoManager() *fakeRepoManager {
	rounds := &fakeRoundRepo{rounds: make(map[string]domain.Round)}
	events := &fakeEventRepo{events: make(map[string][]domain.RoundEvent)}
	events.RegisterEventsHandler(func(r *domain.Round) {
		// nolint
		rounds.AddOrUpdateRound(context.Background(), *r)
	})
	return &fakeRepoManager{
		events:  events,
		rounds:  rounds,
		results: &fakeResultRepo{
			results:       make(map[uint64]domain.RoundResults),
			finalizations: make(map[string]domain.Finalization),
		},
		claims: &fakeClaimRepo{claims: make(map[uint64]domain.RewardClaims)},
	}
}

func (m *fakeRepoManager) Events() domain.RoundEventRepository { return m.events }
func (m *fakeRepoManager) Rounds() domain.RoundRepository      { return m.rounds }
func (m *fakeRepoManager) Results() domain.ResultRepository    { return m.results }
func (m *fakeRepoManager) Claims() domain.ClaimRepository      { return m.claims }
func (m *fakeRepoManager) Close()                              {}

type fakeEventRepo struct {
	lock    sync.Mutex
	events  map[string][]domain.RoundEvent
	handler func(*domain.Round)
}

func (r *fakeEventRepo) Save(
	_ context.Context, id string, events ...domain.RoundEvent,
) (*domain.Round, error) {
	r.lock.Lock()
	r.events[id] = append(r.events[id], events...)
	round := domain.NewRoundFromEvents(r.events[id])
	handler := r.handler
	r.lock.Unlock()

	if handler != nil {
		handler(round)
	}
	return round, nil
}

func (r *fakeEventRepo) Load(_ context.Context, id string) (*domain.Round, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	events, ok := r.events[id]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	return domain.NewRoundFromEvents(events), nil
}

func (r *fakeEventRepo) RegisterEventsHandler(handler func(*domain.Round)) {
	r.handler = handler
}

func (r *fakeEventRepo) Close() {}

type fakeRoundRepo struct {
	lock   sync.Mutex
	rounds map[string]domain.Round
}

func (r *fakeRoundRepo) AddOrUpdateRound(_ context.Context, round domain.Round) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.rounds[round.Id] = round
	return nil
}

func (r *fakeRoundRepo) GetRoundWithId(_ context.Context, id string) (*domain.Round, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	round, ok := r.rounds[id]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	return &round, nil
}

func (r *fakeRoundRepo) GetRoundWithEpoch(_ context.Context, epoch uint64) (*domain.Round, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, round := range r.rounds {
		if round.Epoch == epoch {
			return &round, nil
		}
	}
	return nil, domain.ErrRoundNotFound
}

func (r *fakeRoundRepo) GetRoundsIds(_ context.Context, _, _ int64) ([]string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	ids := make([]string, 0, len(r.rounds))
	for id := range r.rounds {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeRoundRepo) Close() {}

type fakeResultRepo struct {
	lock          sync.Mutex
	results       map[uint64]domain.RoundResults
	finalizations map[string]domain.Finalization
}

func (r *fakeResultRepo) AddRoundResults(_ context.Context, results domain.RoundResults) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.results[results.Round] = results
	return nil
}

func (r *fakeResultRepo) GetRoundResults(_ context.Context, round uint64) (*domain.RoundResults, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	results, ok := r.results[round]
	if !ok {
		return nil, fmt.Errorf("results of round %d not found", round)
	}
	return &results, nil
}

func (r *fakeResultRepo) AddFinalization(_ context.Context, f domain.Finalization) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.finalizations[fmt.Sprintf("%s:%d", f.Scope, f.Id)] = f
	return nil
}

func (r *fakeResultRepo) GetFinalization(
	_ context.Context, scope string, id uint64,
) (*domain.Finalization, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	f, ok := r.finalizations[fmt.Sprintf("%s:%d", scope, id)]
	if !ok {
		return nil, fmt.Errorf("finalization of %s %d not found", scope, id)
	}
	return &f, nil
}

func (r *fakeResultRepo) Close() {}

type fakeClaimRepo struct {
	lock   sync.Mutex
	claims map[uint64]domain.RewardClaims
	err    error
}

func (r *fakeClaimRepo) AddRewardClaims(_ context.Context, claims domain.RewardClaims) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.claims[claims.RewardEpoch] = claims
	return nil
}

func (r *fakeClaimRepo) GetRewardClaims(_ context.Context, rewardEpoch uint64) (*domain.RewardClaims, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	claims, ok := r.claims[rewardEpoch]
	if !ok {
		return nil, fmt.Errorf("claims of reward epoch %d: %w", rewardEpoch, domain.ErrNotFound)
	}
	return &claims, nil
}

func (r *fakeClaimRepo) Close() {}
