package evmchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	ctx := context.Background()

	_, err := NewChain(nil, testConfig)
	require.Error(t, err)

	backend := newFakeBackend(10)
	chain, err := NewChain(backend, testConfig)
	require.NoError(t, err)

	t.Run("latest block time", func(t *testing.T) {
		now, err := chain.LatestBlockTime(ctx)
		require.NoError(t, err)
		require.Equal(t, time.Unix(int64(blockTime(10)), 0), now)
	})

	t.Run("is finalized", func(t *testing.T) {
		_, err := chain.IsFinalized(ctx, 3)
		require.Error(t, err)

		backend.setOutput(t, methodIsFinalized, true)
		finalized, err := chain.IsFinalized(ctx, 3)
		require.NoError(t, err)
		require.True(t, finalized)
	})

	t.Run("weights", func(t *testing.T) {
		other := common.HexToAddress("0x3333333333333333333333333333333333333333")
		backend.setOutput(t, methodGetVoterWeights,
			[]common.Address{voter, other}, []*big.Int{big.NewInt(40), big.NewInt(60)},
		)

		weights, err := chain.GetWeights(ctx, 1)
		require.NoError(t, err)
		require.Len(t, weights, 2)
		require.Zero(t, amount.New(40).Cmp(weights[voter]))
		require.Zero(t, amount.New(60).Cmp(weights[other]))

		// Mutating the result doesn't touch the cache.
		delete(weights, voter)

		weights, err = chain.GetWeights(ctx, 1)
		require.NoError(t, err)
		require.Len(t, weights, 2)
		require.Equal(t, 1, backend.callCount(methodGetVoterWeights))

		_, err = chain.GetWeights(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, 2, backend.callCount(methodGetVoterWeights))
	})

	t.Run("submission without key", func(t *testing.T) {
		err := chain.SubmitCommit(ctx, 3, root)
		require.Error(t, err)

		var submissionErr domain.TransientSubmissionError
		require.True(t, errors.As(err, &submissionErr))
		require.Equal(t, uint64(3), submissionErr.Round)
		require.Equal(t, "submit commit", submissionErr.Action)
	})
}
