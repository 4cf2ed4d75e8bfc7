package domain

import "context"

type RoundRepository interface {
	AddOrUpdateRound(ctx context.Context, round Round) error
	GetRoundWithId(ctx context.Context, id string) (*Round, error)
	GetRoundWithEpoch(ctx context.Context, epoch uint64) (*Round, error)
	GetRoundsIds(ctx context.Context, startedAfter int64, startedBefore int64) ([]string, error)
	Close()
}

type ResultRepository interface {
	AddRoundResults(ctx context.Context, results RoundResults) error
	GetRoundResults(ctx context.Context, round uint64) (*RoundResults, error)
	AddFinalization(ctx context.Context, finalization Finalization) error
	GetFinalization(ctx context.Context, scope string, id uint64) (*Finalization, error)
	Close()
}

type ClaimRepository interface {
	AddRewardClaims(ctx context.Context, claims RewardClaims) error
	GetRewardClaims(ctx context.Context, rewardEpoch uint64) (*RewardClaims, error)
	Close()
}
