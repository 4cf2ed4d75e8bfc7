package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	inmemorylivestore "github.com/ftso-network/ftso/internal/infrastructure/live-store/inmemory"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/merkle"
	"github.com/ftso-network/ftso/pkg/rewards"
	"github.com/ftso-network/ftso/pkg/roundclock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	voter1    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	voter2    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	voter3    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	finalizer = common.HexToAddress("0xf1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1")
	remainder = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	currency  = common.HexToAddress("0xc0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0")

	testWeights = staticWeights{
		voter1: amount.New(40),
		voter2: amount.New(30),
		voter3: amount.New(30),
	}
)

type testEnv struct {
	svc        *service
	sink       *mockedSink
	chain      *mockedChain
	repo       *fakeRepoManager
	fatalLock  sync.Mutex
	fatalErrs  []error
	feeds      []codec.Feed
}

func (e *testEnv) fatalErrors() []error {
	e.fatalLock.Lock()
	defer e.fatalLock.Unlock()
	return append([]error{}, e.fatalErrs...)
}

// newTestEnv sets up a node whose rounds all lie far in the past, so that
// every deadline has already expired.
func newTestEnv(t *testing.T, finalizedOnChain bool) *testEnv {
	clock, err := roundclock.New(roundclock.Config{
		FirstRoundStartSec:   0,
		RoundDurationSec:     90,
		FirstRewardedRound:   0,
		RoundsPerRewardEpoch: 10,
	})
	require.NoError(t, err)
	feeds, err := codec.ParseFeeds([]string{"BTC-USD", "ETH-USD"})
	require.NoError(t, err)

	sink := &mockedSink{}
	sink.On("SubmitCommit", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("SubmitReveal", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("SubmitSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("SubmitRewardSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	sink.On("Finalize", mock.Anything, mock.Anything).Return(nil)
	sink.On("FinalizeRewards", mock.Anything, mock.Anything).Return(nil)

	chain := &mockedChain{}
	chain.On("IsFinalized", mock.Anything, mock.Anything).Return(finalizedOnChain, nil)
	chain.On("LatestBlockTime", mock.Anything).Return(time.Now(), nil)

	env := &testEnv{
		sink:  sink,
		chain: chain,
		repo:  newFakeRepoManager(),
		feeds: feeds,
	}
	svc, err := NewService(
		Config{
			Clock:             clock,
			Feeds:             feeds,
			FinalizationGrace: time.Millisecond,
			PollInterval:      time.Millisecond,
			Recoverer:         addressRecoverer{},
			OnFatal: func(err error) {
				env.fatalLock.Lock()
				defer env.fatalLock.Unlock()
				env.fatalErrs = append(env.fatalErrs, err)
			},
		},
		env.repo, inmemorylivestore.NewLiveStore(), newFakeScheduler(),
		&fakeStream{events: make(chan domain.ProtocolEvent)}, testWeights,
		sink, chain, fakeSigner{voter1}, fixedPriceFeed{[]uint32{100, 2000}},
	)
	require.NoError(t, err)
	env.svc = svc.(*service)
	t.Cleanup(env.svc.Stop)
	return env
}

// vote stores the commit and the matching reveal of a voter.
func (e *testEnv) vote(t *testing.T, round uint64, voter common.Address, random uint64, prices []uint32) {
	packed := codec.PackPrices(prices)
	commitHash := codec.CommitHash(voter, amount.New(random), packed)
	require.NoError(t, e.svc.liveStore.Commits().Set(round, voter, commitHash))
	require.NoError(t, e.svc.liveStore.Reveals().Set(round, domain.Reveal{
		Voter:        voter,
		Random:       amount.New(random),
		PackedPrices: packed,
	}))
}

func TestNewService(t *testing.T) {
	clock, err := roundclock.New(roundclock.Config{RoundDurationSec: 90, RoundsPerRewardEpoch: 10})
	require.NoError(t, err)
	feeds, err := codec.ParseFeeds([]string{"BTC-USD"})
	require.NoError(t, err)

	t.Run("invalid", func(t *testing.T) {
		_, err := NewService(Config{Feeds: feeds}, nil, nil, nil, nil, nil, nil, nil, nil, nil)
		require.EqualError(t, err, "missing round clock")

		_, err = NewService(Config{Clock: clock}, nil, nil, nil, nil, nil, nil, nil, nil, nil)
		require.EqualError(t, err, "missing feeds")

		_, err = NewService(Config{Clock: clock, Feeds: feeds}, nil, nil, nil, nil, nil, nil, nil, nil, nil)
		require.EqualError(t, err, "missing repo manager")

		_, err = NewService(
			Config{Clock: clock, Feeds: feeds, RewardParams: rewards.Params{
				SigningBips: 6000, FinalizationBips: 6000, BurnAddress: remainder,
			}},
			newFakeRepoManager(), inmemorylivestore.NewLiveStore(), newFakeScheduler(),
			&fakeStream{}, testWeights, &mockedSink{}, &mockedChain{}, fakeSigner{voter1},
			fixedPriceFeed{[]uint32{1}},
		)
		require.ErrorContains(t, err, "invalid reward params")
	})
}

func TestAggregate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env := newTestEnv(t, false)
		round := uint64(5)
		env.vote(t, round, voter1, 1, []uint32{100, 2000})
		env.vote(t, round, voter2, 2, []uint32{110, 2100})
		env.vote(t, round, voter3, 3, []uint32{120, 2200})

		env.svc.aggregate(round)

		require.Empty(t, env.fatalErrors())

		results, err := env.svc.GetRoundResults(context.Background(), round)
		require.NoError(t, err)
		require.Len(t, results.Results, 2)
		require.Equal(t, "BTC-USD", results.Results[0].FeedId)
		require.Equal(t, uint32(110), results.Results[0].FinalMedianPrice)
		require.Equal(t, uint32(2100), results.Results[1].FinalMedianPrice)
		require.Equal(t, amount.New(6), results.Random)
		require.True(t, results.SecureRandom)

		r, err := env.svc.GetRound(context.Background(), round)
		require.NoError(t, err)
		require.Equal(t, domain.SigningStage, r.Stage.Code)
		require.Equal(t, results.MerkleRoot, r.MerkleRoot)
		require.Equal(t, 3, r.NumReveals)

		env.sink.AssertCalled(t, "SubmitSignature", mock.Anything, round, results.MerkleRoot, voter1.Bytes())

		last, ok := env.svc.rewards.LastProcessedRound()
		require.True(t, ok)
		require.Equal(t, round, last)
	})

	t.Run("failed reveals", func(t *testing.T) {
		env := newTestEnv(t, false)
		round := uint64(5)
		env.vote(t, round, voter1, 1, []uint32{100, 2000})
		env.vote(t, round, voter2, 2, []uint32{110, 2100})
		// voter3 committed but never revealed
		require.NoError(t, env.svc.liveStore.Commits().Set(round, voter3, common.HexToHash("0x01")))

		env.svc.aggregate(round)

		results, err := env.svc.GetRoundResults(context.Background(), round)
		require.NoError(t, err)
		require.False(t, results.SecureRandom)
		require.Equal(t, amount.New(3), results.Random)

		r, err := env.svc.GetRound(context.Background(), round)
		require.NoError(t, err)
		require.Equal(t, 2, r.NumReveals)
		require.Equal(t, 1, r.NumFailedReveals)
	})

	t.Run("insufficient data", func(t *testing.T) {
		env := newTestEnv(t, false)
		round := uint64(5)

		env.svc.aggregate(round)

		require.Empty(t, env.fatalErrors())
		_, err := env.svc.GetRoundResults(context.Background(), round)
		require.Error(t, err)

		r, err := env.svc.GetRound(context.Background(), round)
		require.NoError(t, err)
		require.True(t, r.IsFailed())
		env.sink.AssertNotCalled(t, "SubmitSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		// rewards are processed anyway to keep rounds in sequence
		last, ok := env.svc.rewards.LastProcessedRound()
		require.True(t, ok)
		require.Equal(t, round, last)
	})

	t.Run("unobserved finalization", func(t *testing.T) {
		env := newTestEnv(t, true)
		round := uint64(5)
		env.vote(t, round, voter1, 1, []uint32{100, 2000})

		env.svc.aggregate(round)

		errs := env.fatalErrors()
		require.Len(t, errs, 1)
		require.ErrorAs(t, errs[0], &domain.UnobservedFinalizationError{})
		require.True(t, domain.IsFatal(errs[0]))

		_, ok := env.svc.rewards.LastProcessedRound()
		require.False(t, ok)
		env.sink.AssertNotCalled(t, "SubmitSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("out of sequence", func(t *testing.T) {
		env := newTestEnv(t, false)

		env.svc.aggregate(5)
		require.Empty(t, env.fatalErrors())

		env.svc.aggregate(7)
		errs := env.fatalErrors()
		require.Len(t, errs, 1)
		var seqErr domain.SequencingError
		require.ErrorAs(t, errs[0], &seqErr)
		require.Equal(t, uint64(6), seqErr.Expected)
		require.Equal(t, uint64(7), seqErr.Got)
	})
}

func TestRewards(t *testing.T) {
	feed, err := codec.ParseFeed("BTC-USD")
	require.NoError(t, err)
	offer := rewards.Offer{
		Feed:             feed,
		Currency:         currency,
		Amount:           amount.New(10_000),
		RewardBeltPPM:    100_000,
		IqrSharePPM:      500_000,
		PctSharePPM:      500_000,
		RemainderClaimer: remainder,
	}
	previousRoot := common.HexToHash("0xabcdef")

	withAmount := func(v uint64) rewards.Offer {
		o := offer
		o.Amount = amount.New(v)
		return o
	}

	// setup delivers each offer in its own event and finalizes round 4 with
	// voter2 and voter3 as signers of the finalized root.
	setup := func(t *testing.T, offers ...rewards.Offer) *testEnv {
		env := newTestEnv(t, false)
		for _, o := range offers {
			env.svc.handleRewardEvent(domain.RewardOffersObserved{
				RewardEpoch: 0,
				Offers:      []rewards.Offer{o},
				ObservedAt:  time.Now(),
			})
		}
		// offers are registered with the first processed round of the epoch
		require.False(t, env.svc.rewards.HasOffers(0))

		for _, signer := range []common.Address{voter2, voter3} {
			require.NoError(t, env.svc.liveStore.Signatures().Add(4, domain.SignatureRecord{
				Root:       previousRoot,
				Signature:  signer.Bytes(),
				ObservedAt: time.Now().Unix(),
			}))
		}
		env.svc.onRoundFinalization(domain.FinalizationObserved{
			Round:      4,
			Root:       previousRoot,
			Finalizer:  finalizer,
			ObservedAt: time.Now(),
		})

		f, err := env.svc.GetFinalization(context.Background(), domain.FinalizationScopeRound, 4)
		require.NoError(t, err)
		require.Equal(t, finalizer, f.Finalizer)
		return env
	}

	t.Run("finalizer and signers", func(t *testing.T) {
		env := setup(t, offer)

		env.svc.aggregate(5)
		require.Empty(t, env.fatalErrors())

		claims := env.svc.rewards.RoundClaims(5)
		byBeneficiary := make(map[common.Address]rewards.Claim)
		for _, c := range claims {
			byBeneficiary[c.Beneficiary] = c
		}
		// 10000 over 10 rounds, 10% to the finalizer and 10% to the signers
		require.Equal(t, amount.New(100), byBeneficiary[finalizer].Amount)
		require.Equal(t, rewards.ClaimTypeFixed, byBeneficiary[finalizer].Type)
		require.Equal(t, amount.New(50), byBeneficiary[voter2].Amount)
		require.Equal(t, amount.New(50), byBeneficiary[voter3].Amount)
		// no valid reveal, the median share goes to the remainder claimer
		require.Equal(t, amount.New(800), byBeneficiary[remainder].Amount)
	})

	t.Run("claims with proofs", func(t *testing.T) {
		env := setup(t, offer)
		env.svc.aggregate(5)

		info, err := env.svc.GetClaims(context.Background(), 0, nil)
		require.NoError(t, err)
		require.Len(t, info.Claims, 4)
		for _, c := range info.Claims {
			leaf := rewardClaimLeaf(0, c.Claim)
			require.True(t, merkle.Verify(leaf, c.Proof, info.MerkleRoot))
		}

		info, err = env.svc.GetClaims(context.Background(), 0, &finalizer)
		require.NoError(t, err)
		require.Len(t, info.Claims, 1)
		require.Equal(t, amount.New(100), info.Claims[0].Claim.Amount)

		_, err = env.svc.GetClaims(context.Background(), 3, nil)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("claims storage failure", func(t *testing.T) {
		env := setup(t, offer)
		env.svc.aggregate(5)
		require.NotEmpty(t, env.svc.rewards.Cumulative(0))

		dbErr := fmt.Errorf("database is locked")
		env.repo.claims.lock.Lock()
		env.repo.claims.err = dbErr
		env.repo.claims.lock.Unlock()

		info, err := env.svc.GetClaims(context.Background(), 0, nil)
		require.ErrorIs(t, err, dbErr)
		require.Nil(t, info)
	})

	t.Run("sign reward epoch", func(t *testing.T) {
		env := setup(t, offer)
		env.svc.aggregate(5)

		env.svc.signRewardEpoch(0)

		stored, err := env.repo.Claims().GetRewardClaims(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, stored.Claims, 4)
		env.sink.AssertCalled(
			t, "SubmitRewardSignature", mock.Anything, uint64(0), stored.MerkleRoot, voter1.Bytes(),
		)

		info, err := env.svc.GetClaims(context.Background(), 0, nil)
		require.NoError(t, err)
		require.Equal(t, stored.MerkleRoot, info.MerkleRoot)
	})

	t.Run("offers from several transactions", func(t *testing.T) {
		env := setup(t, withAmount(4_000), withAmount(6_000))

		env.svc.aggregate(5)
		require.Empty(t, env.fatalErrors())
		require.True(t, env.svc.rewards.HasOffers(0))

		totals := make(map[common.Address]amount.Amount)
		for _, c := range env.svc.rewards.RoundClaims(5) {
			sum, err := totals[c.Beneficiary].Add(c.Amount)
			require.NoError(t, err)
			totals[c.Beneficiary] = sum
		}
		require.Equal(t, amount.New(100), totals[finalizer])
		require.Equal(t, amount.New(50), totals[voter2])
		require.Equal(t, amount.New(50), totals[voter3])
		require.Equal(t, amount.New(800), totals[remainder])
	})

	t.Run("offers after the window closed", func(t *testing.T) {
		env := setup(t, offer)
		env.svc.aggregate(5)
		require.Empty(t, env.fatalErrors())

		env.svc.handleRewardEvent(domain.RewardOffersObserved{
			RewardEpoch: 0,
			Offers:      []rewards.Offer{offer},
			ObservedAt:  time.Now(),
		})
		require.Empty(t, env.fatalErrors())
		require.Empty(t, env.svc.pendingOffers)

		env.svc.aggregate(6)
		require.Empty(t, env.fatalErrors())
		require.Equal(t, amount.New(2_000), sumAmounts(t, env.svc.rewards.Cumulative(0)))
	})
}

func sumAmounts(t *testing.T, claims []rewards.Claim) amount.Amount {
	tot := amount.Zero()
	for _, c := range claims {
		var err error
		tot, err = tot.Add(c.Amount)
		require.NoError(t, err)
	}
	return tot
}

func TestGetClaimsWithPenalty(t *testing.T) {
	env := newTestEnv(t, false)
	claims := []rewards.Claim{
		{Type: rewards.ClaimTypeFixed, Beneficiary: finalizer, Currency: currency, Amount: amount.New(100)},
		{Type: rewards.ClaimTypeWeighted, Beneficiary: voter1, Currency: currency, Amount: amount.New(700)},
		{Type: rewards.ClaimTypeWeighted, Beneficiary: voter2, Currency: currency, Amount: amount.New(200)},
		{Type: rewards.ClaimTypePenalty, Beneficiary: voter3, Currency: currency, Amount: amount.New(30)},
	}
	tree, leafClaims := rewardClaimTree(2, claims)
	require.Len(t, leafClaims, 3)
	root, ok := tree.Root()
	require.True(t, ok)
	require.NoError(t, env.repo.Claims().AddRewardClaims(context.Background(), domain.RewardClaims{
		RewardEpoch: 2,
		MerkleRoot:  root,
		Claims:      claims,
	}))

	info, err := env.svc.GetClaims(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Equal(t, root, info.MerkleRoot)
	require.Len(t, info.Claims, 4)
	for _, c := range info.Claims {
		if c.Claim.Type == rewards.ClaimTypePenalty {
			require.Empty(t, c.Proof)
			continue
		}
		require.True(t, merkle.Verify(rewardClaimLeaf(2, c.Claim), c.Proof, root))
	}
}

func TestCommitAndReveal(t *testing.T) {
	env := newTestEnv(t, false)
	round := uint64(5)

	env.svc.commit(round)

	own, err := env.svc.liveStore.OwnReveals().Get(round)
	require.NoError(t, err)
	require.NotNil(t, own)
	require.Equal(t, []uint32{100, 2000}, own.Prices)

	r, err := env.svc.GetRound(context.Background(), round)
	require.NoError(t, err)
	require.True(t, r.HasCommitted())
	expectedHash := codec.CommitHash(voter1, own.Random, codec.PackPrices(own.Prices))
	require.Equal(t, expectedHash, r.CommitHash)
	env.sink.AssertCalled(t, "SubmitCommit", mock.Anything, round, expectedHash)

	env.svc.reveal(round)

	r, err = env.svc.GetRound(context.Background(), round)
	require.NoError(t, err)
	require.Equal(t, domain.RevealStage, r.Stage.Code)
	env.sink.AssertCalled(t, "SubmitReveal", mock.Anything, round, own.Random, codec.PackPrices(own.Prices))

	// nothing to reveal for a round the node didn't commit for
	env.svc.reveal(round + 1)
	env.sink.AssertNumberOfCalls(t, "SubmitReveal", 1)
}

func TestDispatchEvent(t *testing.T) {
	env := newTestEnv(t, false)
	round := uint64(42)
	commitHash := common.HexToHash("0x42")

	env.svc.dispatchEvent(domain.CommitObserved{
		Round:      round,
		Voter:      voter2,
		CommitHash: commitHash,
		ObservedAt: time.Now(),
	})
	env.svc.dispatchEvent(domain.RevealObserved{
		Round:        round,
		Voter:        voter2,
		Random:       amount.New(7),
		PackedPrices: codec.PackPrices([]uint32{1, 2}),
		ObservedAt:   time.Now(),
	})

	require.Eventually(t, func() bool {
		reveals, err := env.svc.liveStore.Reveals().Get(round)
		return err == nil && len(reveals) == 1
	}, time.Second, 10*time.Millisecond)

	commits, err := env.svc.liveStore.Commits().Get(round)
	require.NoError(t, err)
	require.Equal(t, commitHash, commits[voter2])
}

func TestPrune(t *testing.T) {
	env := newTestEnv(t, false)
	require.NoError(t, env.svc.liveStore.Commits().Set(1, voter1, common.HexToHash("0x01")))
	env.svc.getOrCreateRound(1)
	env.svc.roundLanes.dispatch(context.Background(), 1, func() {})

	env.svc.prune(10)

	commits, err := env.svc.liveStore.Commits().Get(1)
	require.NoError(t, err)
	require.Empty(t, commits)
	require.Zero(t, env.svc.roundLanes.count())
	env.svc.lock.RLock()
	require.Empty(t, env.svc.rounds)
	env.svc.lock.RUnlock()
}
