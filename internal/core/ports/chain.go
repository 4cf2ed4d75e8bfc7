package ports

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/finalization"
)

// EventStream delivers the protocol events observed on chain in chain order.
// The channel is closed once the stream is stopped.
type EventStream interface {
	Start(ctx context.Context, fromRound uint64) (<-chan domain.ProtocolEvent, error)
	Stop()
}

type WeightRegistry interface {
	GetWeights(ctx context.Context, rewardEpoch uint64) (map[common.Address]amount.Amount, error)
}

// SubmissionSink sends the node's actions on chain. Rejections are returned
// as domain.TransientSubmissionError.
type SubmissionSink interface {
	SubmitCommit(ctx context.Context, round uint64, commitHash common.Hash) error
	SubmitReveal(ctx context.Context, round uint64, random amount.Amount, packedPrices []byte) error
	SubmitSignature(ctx context.Context, round uint64, root common.Hash, signature []byte) error
	SubmitRewardSignature(ctx context.Context, rewardEpoch uint64, root common.Hash, signature []byte) error
	Finalize(ctx context.Context, quorum finalization.Quorum) error
	FinalizeRewards(ctx context.Context, quorum finalization.Quorum) error
}

type ChainReader interface {
	IsFinalized(ctx context.Context, round uint64) (bool, error)
	LatestBlockTime(ctx context.Context) (time.Time, error)
}
