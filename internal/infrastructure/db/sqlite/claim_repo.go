package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/infrastructure/db/sqlite/sqlc/queries"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/rewards"
)

type claimRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewClaimRepository(config ...interface{}) (domain.ClaimRepository, error) {
	db, err := parseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("cannot open claim repository: %s", err)
	}

	return &claimRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *claimRepository) Close() {
	_ = r.db.Close()
}

// AddRewardClaims replaces the claims stored for the reward epoch.
func (r *claimRepository) AddRewardClaims(ctx context.Context, claims domain.RewardClaims) error {
	epoch := int64(claims.RewardEpoch)
	txBody := func(querierWithTx *queries.Queries) error {
		if err := querierWithTx.UpsertRewardEpochClaims(ctx, queries.RewardEpochClaim{
			RewardEpoch: epoch,
			MerkleRoot:  claims.MerkleRoot.Hex(),
		}); err != nil {
			return fmt.Errorf("failed to upsert reward epoch claims: %w", err)
		}
		if err := querierWithTx.DeleteRewardClaims(ctx, epoch); err != nil {
			return fmt.Errorf("failed to delete old reward claims: %w", err)
		}
		for i, c := range claims.Claims {
			if err := querierWithTx.InsertRewardClaim(ctx, queries.RewardClaim{
				RewardEpoch: epoch,
				Position:    int64(i),
				ClaimType:   int64(c.Type),
				Beneficiary: c.Beneficiary.Hex(),
				Currency:    c.Currency.Hex(),
				Amount:      c.Amount.String(),
				Round:       int64(c.Round),
			}); err != nil {
				return fmt.Errorf("failed to insert reward claim: %w", err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *claimRepository) GetRewardClaims(ctx context.Context, rewardEpoch uint64) (*domain.RewardClaims, error) {
	row, err := r.querier.SelectRewardEpochClaims(ctx, int64(rewardEpoch))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("claims of reward epoch %d: %w", rewardEpoch, domain.ErrNotFound)
		}
		return nil, err
	}
	rows, err := r.querier.SelectRewardClaims(ctx, int64(rewardEpoch))
	if err != nil {
		return nil, err
	}

	claims := make([]rewards.Claim, 0, len(rows))
	for _, c := range rows {
		value, err := amount.FromDecimal(c.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount of reward claim: %w", err)
		}
		claims = append(claims, rewards.Claim{
			Type:        rewards.ClaimType(c.ClaimType),
			Beneficiary: common.HexToAddress(c.Beneficiary),
			Currency:    common.HexToAddress(c.Currency),
			Amount:      value,
			Round:       uint64(c.Round),
		})
	}
	return &domain.RewardClaims{
		RewardEpoch: rewardEpoch,
		MerkleRoot:  common.HexToHash(row.MerkleRoot),
		Claims:      claims,
	}, nil
}
