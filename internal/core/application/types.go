package application

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/finalization"
	"github.com/ftso-network/ftso/pkg/rewards"
	"github.com/ftso-network/ftso/pkg/roundclock"
)

const (
	defaultRetainRounds      = 8
	defaultLaneSize          = 256
	defaultFinalizationGrace = 20 * time.Second
	defaultPollInterval      = 500 * time.Millisecond
)

type Service interface {
	Start() error
	Stop()
	GetStatus(ctx context.Context) (*Status, error)
	GetRound(ctx context.Context, round uint64) (*domain.Round, error)
	GetRoundResults(ctx context.Context, round uint64) (*domain.RoundResults, error)
	GetFinalization(ctx context.Context, scope string, id uint64) (*domain.Finalization, error)
	GetClaims(ctx context.Context, rewardEpoch uint64, beneficiary *common.Address) (*ClaimsInfo, error)
}

// Config holds the protocol parameters of the node. Zero values fall back to
// the defaults.
type Config struct {
	Clock             *roundclock.Clock
	Feeds             []codec.Feed
	RewardParams      rewards.Params
	ThresholdBips     uint64
	FinalizationGrace time.Duration
	RetainRounds      uint64
	PollInterval      time.Duration
	// Recoverer defaults to ECDSA recovery over the EIP-191 hash of the root.
	Recoverer finalization.SignerRecoverer
	// OnFatal is called with errors after which the node must not go on.
	// Defaults to log.Fatal, which runs the registered exit handlers.
	OnFatal func(err error)
}

type Status struct {
	Address            string
	CurrentRound       uint64
	CurrentRewardEpoch uint64
	LastProcessedRound *uint64
	RoundWatermark     *uint64
	RewardWatermark    *uint64
	Feeds              []string
}

type ClaimWithProof struct {
	Claim rewards.Claim
	// Proof is empty for penalty claims, they are not part of the tree.
	Proof []common.Hash
}

type ClaimsInfo struct {
	RewardEpoch uint64
	MerkleRoot  common.Hash
	Claims      []ClaimWithProof
}
