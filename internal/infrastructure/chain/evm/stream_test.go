package evmchain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	VotingContract:   common.HexToAddress("0x000000000000000000000000000000000000a001"),
	RewardContract:   common.HexToAddress("0x000000000000000000000000000000000000a002"),
	RegistryContract: common.HexToAddress("0x000000000000000000000000000000000000a003"),
	StartBlock:       1,
	PollInterval:     5 * time.Millisecond,
	BlockBatchSize:   2,
}

func TestEventStream(t *testing.T) {
	_, err := NewEventStream(nil, testConfig)
	require.Error(t, err)
	_, err = NewEventStream(newFakeBackend(1), Config{})
	require.Error(t, err)

	backend := newFakeBackend(3)
	backend.addLogs(3,
		makeLog(t, eventPriceCommitted, 1, tx1,
			[]common.Hash{idTopic(4), addressTopic(voter)}, [32]byte(root)),
		makeLog(t, eventPriceCommitted, 2, tx1,
			[]common.Hash{idTopic(5), addressTopic(voter)}, [32]byte(root)),
		makeLog(t, eventRewardEpochFinalized, 3, tx2,
			[]common.Hash{idTopic(0)}, [32]byte(root), finalizer),
	)

	stream, err := NewEventStream(backend, testConfig)
	require.NoError(t, err)

	events, err := stream.Start(context.Background(), 5)
	require.NoError(t, err)

	_, err = stream.Start(context.Background(), 5)
	require.Error(t, err)

	next := func() domain.ProtocolEvent {
		select {
		case event := <-events:
			return event
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return nil
		}
	}

	// The commit of round 4 is before the first round of interest.
	commit, ok := next().(domain.CommitObserved)
	require.True(t, ok)
	require.Equal(t, uint64(5), commit.Round)
	require.Equal(t, time.Unix(int64(blockTime(2)), 0), commit.ObservedAt)

	fin, ok := next().(domain.RewardFinalizationObserved)
	require.True(t, ok)
	require.Equal(t, uint64(0), fin.RewardEpoch)

	backend.addLogs(4, makeLog(t, eventRoundFinalized, 4, tx2,
		[]common.Hash{idTopic(5)}, [32]byte(root), finalizer))

	roundFin, ok := next().(domain.FinalizationObserved)
	require.True(t, ok)
	require.Equal(t, finalizer, roundFin.Finalizer)

	stream.Stop()
	_, open := <-events
	require.False(t, open)

	stream.Stop()
}
