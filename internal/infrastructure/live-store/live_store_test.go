package livestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	inmemory "github.com/ftso-network/ftso/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/ftso-network/ftso/internal/infrastructure/live-store/redis"
	"github.com/ftso-network/ftso/pkg/amount"
)

var (
	voter1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	voter2 = common.HexToAddress("0x2222222222222222222222222222222222222222")

	commit1 = common.HexToHash("0xaa")
	commit2 = common.HexToHash("0xbb")
	root    = common.HexToHash("0x2a1cf4f2ba8dd3c2b2c1ad4b1f0f2d5e04b26e1b0d8e0cfbb0e5d2c14aa0d9f1")
)

func TestLiveStoreImplementations(t *testing.T) {
	stores := []struct {
		name  string
		store ports.LiveStore
	}{
		{"inmemory", inmemory.NewLiveStore()},
	}

	redisOpts, err := redis.ParseURL("redis://localhost:6379/0")
	require.NoError(t, err)
	rdb := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err == nil {
		stores = append(stores, struct {
			name  string
			store ports.LiveStore
		}{"redis", redislivestore.NewLiveStore(rdb, 5)})
	} else {
		t.Logf("skipping redis live store: %s", err)
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			runLiveStoreTests(t, tt.store)
		})
	}
}

func runLiveStoreTests(t *testing.T, store ports.LiveStore) {
	round := uint64(time.Now().UnixNano())

	t.Run("CommitsStore", func(t *testing.T) {
		got, err := store.Commits().Get(round)
		require.NoError(t, err)
		require.Empty(t, got)

		require.NoError(t, store.Commits().Set(round, voter1, commit1))
		require.NoError(t, store.Commits().Set(round, voter2, commit2))
		// A later commit of the same voter replaces the previous one.
		require.NoError(t, store.Commits().Set(round, voter2, commit1))

		got, err = store.Commits().Get(round)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, commit1, got[voter1])
		require.Equal(t, commit1, got[voter2])

		// Other rounds are untouched.
		other, err := store.Commits().Get(round + 1)
		require.NoError(t, err)
		require.Empty(t, other)

		require.NoError(t, store.Commits().Delete(round))
		got, err = store.Commits().Get(round)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("RevealsStore", func(t *testing.T) {
		reveal := domain.Reveal{
			Voter:        voter1,
			Random:       amount.MustFromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935"),
			PackedPrices: []byte{0, 0, 0, 1, 0, 0, 0, 2},
		}
		require.NoError(t, store.Reveals().Set(round, reveal))

		got, err := store.Reveals().Get(round)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, reveal.Random, got[voter1].Random)
		require.Equal(t, reveal.PackedPrices, got[voter1].PackedPrices)

		// Mutating the returned copy doesn't leak into the store.
		got[voter1].PackedPrices[0] = 0xff
		got, err = store.Reveals().Get(round)
		require.NoError(t, err)
		require.Equal(t, byte(0), got[voter1].PackedPrices[0])

		require.NoError(t, store.Reveals().Delete(round))
		got, err = store.Reveals().Get(round)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("OwnRevealsStore", func(t *testing.T) {
		got, err := store.OwnReveals().Get(round)
		require.NoError(t, err)
		require.Nil(t, got)

		reveal := domain.OwnReveal{Random: amount.New(42), Prices: []uint32{100, 200}}
		require.NoError(t, store.OwnReveals().Set(round, reveal))

		got, err = store.OwnReveals().Get(round)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, reveal.Random, got.Random)
		require.Equal(t, reveal.Prices, got.Prices)

		require.NoError(t, store.OwnReveals().Delete(round))
		got, err = store.OwnReveals().Get(round)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("SignaturesStore", func(t *testing.T) {
		first := domain.SignatureRecord{Root: root, Signature: []byte{1, 2, 3}, ObservedAt: 10}
		second := domain.SignatureRecord{Root: root, Signature: []byte{4, 5, 6}, ObservedAt: 11}
		require.NoError(t, store.Signatures().Add(round, first))
		require.NoError(t, store.Signatures().Add(round, second))

		got, err := store.Signatures().Get(round)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, first.Signature, got[0].Signature)
		require.Equal(t, second.Signature, got[1].Signature)
		require.Equal(t, root, got[1].Root)

		require.NoError(t, store.Signatures().Delete(round))
		got, err = store.Signatures().Get(round)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
