package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const claimStoreDir = "claims"

type claimRepository struct {
	store *badgerhold.Store
}

func NewClaimRepository(config ...interface{}) (domain.ClaimRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, claimStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open claim store: %s", err)
	}

	return &claimRepository{store}, nil
}

func (r *claimRepository) AddRewardClaims(
	_ context.Context, claims domain.RewardClaims,
) error {
	return r.store.Upsert(claims.RewardEpoch, claims)
}

func (r *claimRepository) GetRewardClaims(
	_ context.Context, rewardEpoch uint64,
) (*domain.RewardClaims, error) {
	var claims domain.RewardClaims
	if err := r.store.Get(rewardEpoch, &claims); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("claims of reward epoch %d: %w", rewardEpoch, domain.ErrNotFound)
		}
		return nil, err
	}
	return &claims, nil
}

func (r *claimRepository) Close() {
	// nolint
	r.store.Close()
}
