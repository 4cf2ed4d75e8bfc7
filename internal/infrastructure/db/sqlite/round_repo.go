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

type roundRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	db, err := parseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("cannot open round repository: %s", err)
	}

	return &roundRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *roundRepository) Close() {
	_ = r.db.Close()
}

func (r *roundRepository) AddOrUpdateRound(ctx context.Context, round domain.Round) error {
	prices, err := toJSON(round.Prices)
	if err != nil {
		return fmt.Errorf("failed to encode prices of round %d: %w", round.Epoch, err)
	}

	if err := r.querier.UpsertRound(ctx, queries.Round{
		ID:                round.Id,
		Epoch:             int64(round.Epoch),
		RewardEpoch:       int64(round.RewardEpoch),
		StartingTimestamp: round.StartingTimestamp,
		EndingTimestamp:   round.EndingTimestamp,
		StageCode:         int64(round.Stage.Code),
		Ended:             round.Stage.Ended,
		Failed:            round.Stage.Failed,
		CommitHash:        round.CommitHash.Hex(),
		Prices:            prices,
		NumReveals:        int64(round.NumReveals),
		NumFailedReveals:  int64(round.NumFailedReveals),
		MerkleRoot:        round.MerkleRoot.Hex(),
		Random:            round.Random.String(),
		SecureRandom:      round.SecureRandom,
		Signature:         round.Signature,
		FinalizedRoot:     round.FinalizedRoot.Hex(),
		Finalizer:         round.Finalizer.Hex(),
		FailReason:        round.FailReason,
		Version:           int64(round.Version),
	}); err != nil {
		return fmt.Errorf("failed to upsert round %d: %w", round.Epoch, err)
	}
	return nil
}

func (r *roundRepository) GetRoundWithId(ctx context.Context, id string) (*domain.Round, error) {
	row, err := r.querier.SelectRoundWithId(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("round with id %s: %w", id, domain.ErrRoundNotFound)
		}
		return nil, err
	}
	return rowToRound(row)
}

func (r *roundRepository) GetRoundWithEpoch(ctx context.Context, epoch uint64) (*domain.Round, error) {
	row, err := r.querier.SelectRoundWithEpoch(ctx, int64(epoch))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("round %d: %w", epoch, domain.ErrRoundNotFound)
		}
		return nil, err
	}
	return rowToRound(row)
}

func (r *roundRepository) GetRoundsIds(
	ctx context.Context, startedAfter int64, startedBefore int64,
) ([]string, error) {
	if startedAfter <= 0 && startedBefore <= 0 {
		return r.querier.SelectAllRoundIds(ctx)
	}
	if startedBefore <= 0 {
		startedBefore = 1<<63 - 1
	}
	return r.querier.SelectRoundIdsInRange(ctx, queries.SelectRoundIdsInRangeParams{
		StartedAfter:  startedAfter,
		StartedBefore: startedBefore,
	})
}

func rowToRound(row queries.Round) (*domain.Round, error) {
	var prices []uint32
	if err := fromJSON(row.Prices, &prices); err != nil {
		return nil, fmt.Errorf("failed to decode prices of round %d: %w", row.Epoch, err)
	}
	random, err := amount.FromDecimal(row.Random)
	if err != nil {
		return nil, fmt.Errorf("failed to decode random of round %d: %w", row.Epoch, err)
	}

	return &domain.Round{
		Id:                row.ID,
		Epoch:             uint64(row.Epoch),
		RewardEpoch:       uint64(row.RewardEpoch),
		StartingTimestamp: row.StartingTimestamp,
		EndingTimestamp:   row.EndingTimestamp,
		Stage: domain.Stage{
			Code:   domain.RoundStage(row.StageCode),
			Ended:  row.Ended,
			Failed: row.Failed,
		},
		CommitHash:       common.HexToHash(row.CommitHash),
		Prices:           prices,
		NumReveals:       int(row.NumReveals),
		NumFailedReveals: int(row.NumFailedReveals),
		MerkleRoot:       common.HexToHash(row.MerkleRoot),
		Random:           random,
		SecureRandom:     row.SecureRandom,
		Signature:        row.Signature,
		FinalizedRoot:    common.HexToHash(row.FinalizedRoot),
		Finalizer:        common.HexToAddress(row.Finalizer),
		FailReason:       row.FailReason,
		Version:          uint(row.Version),
	}, nil
}
