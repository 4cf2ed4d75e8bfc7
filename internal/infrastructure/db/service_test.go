package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/ftso-network/ftso/internal/infrastructure/db"
	sqlitedb "github.com/ftso-network/ftso/internal/infrastructure/db/sqlite"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/rewards"
	"github.com/stretchr/testify/require"
)

var (
	voter1   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	voter2   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	currency = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

func TestService(t *testing.T) {
	sqliteDb, err := sqlitedb.OpenDb(filepath.Join(t.TempDir(), db.SqliteDbFile))
	require.NoError(t, err)

	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				EventStoreType:   "badger",
				DataStoreType:    "badger",
				EventStoreConfig: []interface{}{"", nil},
				DataStoreConfig:  []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				EventStoreType: "watermill",
				DataStoreType:  "sqlite",
				EventStoreConfig: []interface{}{
					gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
				},
				DataStoreConfig: []interface{}{sqliteDb},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testRoundEventRepository(t, svc)
			testRoundRepository(t, svc)
			testResultRepository(t, svc)
			testClaimRepository(t, svc)
		})
	}
}

func TestServiceInvalidConfig(t *testing.T) {
	_, err := db.NewService(db.ServiceConfig{
		EventStoreType: "postgres",
		DataStoreType:  "badger",
	})
	require.Error(t, err)

	_, err = db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "sqlite",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"not a db"},
	})
	require.Error(t, err)
}

func testRoundEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		ctx := context.Background()

		round := domain.NewRound(7, 0)
		events, err := round.StartCommit()
		require.NoError(t, err)
		saved, err := svc.Events().Save(ctx, round.Id, events...)
		require.NoError(t, err)
		require.True(t, saved.IsStarted())

		events, err = saved.Commit(common.HexToHash("0x01"), []uint32{100, 2000})
		require.NoError(t, err)
		saved, err = svc.Events().Save(ctx, round.Id, events...)
		require.NoError(t, err)
		require.True(t, saved.HasCommitted())

		loaded, err := svc.Events().Load(ctx, round.Id)
		require.NoError(t, err)
		require.Equal(t, round.Id, loaded.Id)
		require.Len(t, loaded.Events(), 2)
		require.Equal(t, []uint32{100, 2000}, loaded.Prices)

		// The round projection is updated by the events handler.
		require.Eventually(t, func() bool {
			r, err := svc.Rounds().GetRoundWithEpoch(ctx, 7)
			return err == nil && r.HasCommitted()
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func testRoundRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_round_repository", func(t *testing.T) {
		ctx := context.Background()

		_, err := svc.Rounds().GetRoundWithEpoch(ctx, 42)
		require.ErrorIs(t, err, domain.ErrRoundNotFound)

		round := domain.NewRound(42, 4)
		events, err := round.StartCommit()
		require.NoError(t, err)
		started := domain.NewRoundFromEvents(events)
		require.NoError(t, svc.Rounds().AddOrUpdateRound(ctx, *started))

		more, err := started.Commit(common.HexToHash("0x02"), []uint32{1, 2, 3})
		require.NoError(t, err)
		committed := domain.NewRoundFromEvents(append(events, more...))
		require.NoError(t, svc.Rounds().AddOrUpdateRound(ctx, *committed))

		// Stale versions don't overwrite newer ones.
		require.NoError(t, svc.Rounds().AddOrUpdateRound(ctx, *started))

		got, err := svc.Rounds().GetRoundWithId(ctx, round.Id)
		require.NoError(t, err)
		require.Equal(t, uint64(42), got.Epoch)
		require.Equal(t, uint64(4), got.RewardEpoch)
		require.Equal(t, committed.Version, got.Version)
		require.Equal(t, []uint32{1, 2, 3}, got.Prices)
		require.Equal(t, common.HexToHash("0x02"), got.CommitHash)

		ids, err := svc.Rounds().GetRoundsIds(ctx, 0, 0)
		require.NoError(t, err)
		require.Contains(t, ids, round.Id)
	})
}

func testResultRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_result_repository", func(t *testing.T) {
		ctx := context.Background()

		_, err := svc.Results().GetRoundResults(ctx, 99)
		require.Error(t, err)

		results := domain.RoundResults{
			Round: 99,
			Results: []domain.FeedResult{
				{
					Round:            99,
					FeedId:           "BTC-USD",
					Voters:           []common.Address{voter1, voter2},
					Prices:           []uint32{100, 120},
					Weights:          []amount.Amount{amount.New(40), amount.New(60)},
					FinalMedianPrice: 120,
					Quartile1Price:   100,
					Quartile3Price:   120,
				},
				{
					Round:            99,
					FeedId:           "ETH-USD",
					Voters:           []common.Address{voter1},
					Prices:           []uint32{2000},
					Weights:          []amount.Amount{amount.New(40)},
					FinalMedianPrice: 2000,
					Quartile1Price:   2000,
					Quartile3Price:   2000,
				},
			},
			Random:       amount.MustFromDecimal("123456789012345678901234567890"),
			SecureRandom: true,
			MerkleRoot:   common.HexToHash("0xabcdef"),
		}
		require.NoError(t, svc.Results().AddRoundResults(ctx, results))

		got, err := svc.Results().GetRoundResults(ctx, 99)
		require.NoError(t, err)
		require.Equal(t, results.MerkleRoot, got.MerkleRoot)
		require.Equal(t, results.SecureRandom, got.SecureRandom)
		require.Zero(t, results.Random.Cmp(got.Random))
		require.Len(t, got.Results, 2)
		require.Equal(t, "BTC-USD", got.Results[0].FeedId)
		require.Equal(t, "ETH-USD", got.Results[1].FeedId)
		require.Equal(t, []common.Address{voter1, voter2}, got.Results[0].Voters)
		require.Equal(t, uint32(120), got.Results[0].FinalMedianPrice)
		require.Zero(t, amount.New(60).Cmp(got.Results[0].Weights[1]))

		_, err = svc.Results().GetFinalization(ctx, domain.FinalizationScopeRound, 99)
		require.Error(t, err)

		finalization := domain.Finalization{
			Scope:     domain.FinalizationScopeRound,
			Id:        99,
			Root:      results.MerkleRoot,
			Finalizer: voter2,
			Timestamp: 1700000000,
		}
		require.NoError(t, svc.Results().AddFinalization(ctx, finalization))

		gotFinalization, err := svc.Results().GetFinalization(ctx, domain.FinalizationScopeRound, 99)
		require.NoError(t, err)
		require.Equal(t, finalization, *gotFinalization)

		_, err = svc.Results().GetFinalization(ctx, domain.FinalizationScopeRewardEpoch, 99)
		require.Error(t, err)
	})
}

func testClaimRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_claim_repository", func(t *testing.T) {
		ctx := context.Background()

		_, err := svc.Claims().GetRewardClaims(ctx, 3)
		require.Error(t, err)

		claims := domain.RewardClaims{
			RewardEpoch: 3,
			MerkleRoot:  common.HexToHash("0x03"),
			Claims: []rewards.Claim{
				{
					Type:        rewards.ClaimTypeFixed,
					Beneficiary: voter1,
					Currency:    currency,
					Amount:      amount.New(100),
					Round:       31,
				},
				{
					Type:        rewards.ClaimTypeWeighted,
					Beneficiary: voter2,
					Currency:    currency,
					Amount:      amount.New(900),
					Round:       31,
				},
			},
		}
		require.NoError(t, svc.Claims().AddRewardClaims(ctx, claims))

		// Claims of an epoch are replaced as a whole.
		claims.Claims = claims.Claims[1:]
		require.NoError(t, svc.Claims().AddRewardClaims(ctx, claims))

		got, err := svc.Claims().GetRewardClaims(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, claims.MerkleRoot, got.MerkleRoot)
		require.Len(t, got.Claims, 1)
		require.Equal(t, rewards.ClaimTypeWeighted, got.Claims[0].Type)
		require.Equal(t, voter2, got.Claims[0].Beneficiary)
		require.Equal(t, currency, got.Claims[0].Currency)
		require.Zero(t, amount.New(900).Cmp(got.Claims[0].Amount))
	})
}
