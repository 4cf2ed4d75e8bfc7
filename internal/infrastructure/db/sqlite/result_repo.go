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
)

type resultRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewResultRepository(config ...interface{}) (domain.ResultRepository, error) {
	db, err := parseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("cannot open result repository: %s", err)
	}

	return &resultRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *resultRepository) Close() {
	_ = r.db.Close()
}

func (r *resultRepository) AddRoundResults(ctx context.Context, results domain.RoundResults) error {
	txBody := func(querierWithTx *queries.Queries) error {
		if err := querierWithTx.UpsertRoundResult(ctx, queries.RoundResult{
			Round:        int64(results.Round),
			Random:       results.Random.String(),
			SecureRandom: results.SecureRandom,
			MerkleRoot:   results.MerkleRoot.Hex(),
		}); err != nil {
			return fmt.Errorf("failed to upsert round result: %w", err)
		}

		for i, res := range results.Results {
			voters, err := toJSON(res.Voters)
			if err != nil {
				return err
			}
			prices, err := toJSON(res.Prices)
			if err != nil {
				return err
			}
			weights, err := toJSON(res.Weights)
			if err != nil {
				return err
			}
			if err := querierWithTx.UpsertFeedResult(ctx, queries.FeedResult{
				Round:          int64(results.Round),
				FeedID:         res.FeedId,
				Position:       int64(i),
				Voters:         voters,
				Prices:         prices,
				Weights:        weights,
				MedianPrice:    int64(res.FinalMedianPrice),
				Quartile1Price: int64(res.Quartile1Price),
				Quartile3Price: int64(res.Quartile3Price),
			}); err != nil {
				return fmt.Errorf("failed to upsert result of feed %s: %w", res.FeedId, err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *resultRepository) GetRoundResults(ctx context.Context, round uint64) (*domain.RoundResults, error) {
	row, err := r.querier.SelectRoundResult(ctx, int64(round))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("results of round %d: %w", round, domain.ErrNotFound)
		}
		return nil, err
	}
	feedRows, err := r.querier.SelectFeedResults(ctx, int64(round))
	if err != nil {
		return nil, err
	}

	random, err := amount.FromDecimal(row.Random)
	if err != nil {
		return nil, err
	}
	results := &domain.RoundResults{
		Round:        round,
		Results:      make([]domain.FeedResult, 0, len(feedRows)),
		Random:       random,
		SecureRandom: row.SecureRandom,
		MerkleRoot:   common.HexToHash(row.MerkleRoot),
	}
	for _, f := range feedRows {
		res := domain.FeedResult{
			Round:            round,
			FeedId:           f.FeedID,
			FinalMedianPrice: uint32(f.MedianPrice),
			Quartile1Price:   uint32(f.Quartile1Price),
			Quartile3Price:   uint32(f.Quartile3Price),
		}
		if err := fromJSON(f.Voters, &res.Voters); err != nil {
			return nil, err
		}
		if err := fromJSON(f.Prices, &res.Prices); err != nil {
			return nil, err
		}
		if err := fromJSON(f.Weights, &res.Weights); err != nil {
			return nil, err
		}
		results.Results = append(results.Results, res)
	}
	return results, nil
}

func (r *resultRepository) AddFinalization(ctx context.Context, finalization domain.Finalization) error {
	if err := r.querier.UpsertFinalization(ctx, queries.Finalization{
		Scope:     finalization.Scope,
		ID:        int64(finalization.Id),
		Root:      finalization.Root.Hex(),
		Finalizer: finalization.Finalizer.Hex(),
		Timestamp: finalization.Timestamp,
	}); err != nil {
		return fmt.Errorf("failed to upsert finalization: %w", err)
	}
	return nil
}

func (r *resultRepository) GetFinalization(
	ctx context.Context, scope string, id uint64,
) (*domain.Finalization, error) {
	row, err := r.querier.SelectFinalization(ctx, queries.SelectFinalizationParams{
		Scope: scope,
		ID:    int64(id),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("finalization of %s %d: %w", scope, id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &domain.Finalization{
		Scope:     row.Scope,
		Id:        uint64(row.ID),
		Root:      common.HexToHash(row.Root),
		Finalizer: common.HexToAddress(row.Finalizer),
		Timestamp: row.Timestamp,
	}, nil
}
