// Package roundclock maps wall-clock time to round (price epoch) ids and
// groups rounds into reward epochs.
//
// Rounds before the first rewarded round belong to reward epoch 0.
package roundclock

import (
	"fmt"
	"time"
)

type Config struct {
	FirstRoundStartSec   uint64
	RoundDurationSec     uint64
	FirstRewardedRound   uint64
	RoundsPerRewardEpoch uint64
}

type Clock struct {
	cfg Config
}

func New(cfg Config) (*Clock, error) {
	if cfg.RoundDurationSec == 0 {
		return nil, fmt.Errorf("round duration must be greater than 0")
	}
	if cfg.RoundsPerRewardEpoch == 0 {
		return nil, fmt.Errorf("rounds per reward epoch must be greater than 0")
	}
	return &Clock{cfg}, nil
}

func (c *Clock) Config() Config {
	return c.cfg
}

func (c *Clock) RoundDuration() time.Duration {
	return time.Duration(c.cfg.RoundDurationSec) * time.Second
}

func (c *Clock) RoundsPerRewardEpoch() uint64 {
	return c.cfg.RoundsPerRewardEpoch
}

// RoundIdForTime returns 0 for any time before the first round started.
func (c *Clock) RoundIdForTime(unixSec uint64) uint64 {
	if unixSec < c.cfg.FirstRoundStartSec {
		return 0
	}
	return (unixSec - c.cfg.FirstRoundStartSec) / c.cfg.RoundDurationSec
}

func (c *Clock) CurrentRound(now time.Time) uint64 {
	return c.RoundIdForTime(uint64(now.Unix()))
}

func (c *Clock) RoundStart(round uint64) uint64 {
	return c.cfg.FirstRoundStartSec + round*c.cfg.RoundDurationSec
}

func (c *Clock) RoundEnd(round uint64) uint64 {
	return c.RoundStart(round + 1)
}

func (c *Clock) RevealDeadline(round uint64) uint64 {
	return c.RoundStart(round) + c.cfg.RoundDurationSec/2
}

func (c *Clock) RewardEpochId(round uint64) uint64 {
	if round < c.cfg.FirstRewardedRound {
		return 0
	}
	return (round - c.cfg.FirstRewardedRound) / c.cfg.RoundsPerRewardEpoch
}

func (c *Clock) FirstRoundOf(rewardEpochId uint64) uint64 {
	return c.cfg.FirstRewardedRound + rewardEpochId*c.cfg.RoundsPerRewardEpoch
}

func (c *Clock) LastRoundOf(rewardEpochId uint64) uint64 {
	return c.FirstRoundOf(rewardEpochId+1) - 1
}

func (c *Clock) IsFirstRoundOfRewardEpoch(round uint64) bool {
	return round >= c.cfg.FirstRewardedRound && round == c.FirstRoundOf(c.RewardEpochId(round))
}

func (c *Clock) IsLastRoundOfRewardEpoch(round uint64) bool {
	return round >= c.cfg.FirstRewardedRound && round == c.LastRoundOf(c.RewardEpochId(round))
}
