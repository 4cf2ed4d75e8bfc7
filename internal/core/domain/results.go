package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/median"
	"github.com/ftso-network/ftso/pkg/rewards"
)

type FeedResult struct {
	Round            uint64
	FeedId           string
	Voters           []common.Address
	Prices           []uint32
	Weights          []amount.Amount
	FinalMedianPrice uint32
	Quartile1Price   uint32
	Quartile3Price   uint32
}

func NewFeedResult(res *median.Result) FeedResult {
	return FeedResult{
		Round:            res.Round,
		FeedId:           res.Feed.Id(),
		Voters:           append([]common.Address{}, res.Voters...),
		Prices:           append([]uint32{}, res.Prices...),
		Weights:          append([]amount.Amount{}, res.Weights...),
		FinalMedianPrice: res.FinalMedianPrice,
		Quartile1Price:   res.Quartile1Price,
		Quartile3Price:   res.Quartile3Price,
	}
}

// RoundResults is what a round publishes: one result per feed with votes, the
// combined random and the merkle root over them.
type RoundResults struct {
	Round        uint64
	Results      []FeedResult
	Random       amount.Amount
	SecureRandom bool
	MerkleRoot   common.Hash
}

const (
	FinalizationScopeRound       = "round"
	FinalizationScopeRewardEpoch = "reward_epoch"
)

type Finalization struct {
	Scope     string
	Id        uint64
	Root      common.Hash
	Finalizer common.Address
	Timestamp int64
}

// RewardClaims are the cumulative claims of a closed reward epoch along with
// the root of the claim tree.
type RewardClaims struct {
	RewardEpoch uint64
	MerkleRoot  common.Hash
	Claims      []rewards.Claim
}
