package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const resultStoreDir = "results"

type finalizationDTO struct {
	domain.Finalization
	Key string
}

type resultRepository struct {
	store *badgerhold.Store
}

func NewResultRepository(config ...interface{}) (domain.ResultRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, resultStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %s", err)
	}

	return &resultRepository{store}, nil
}

func (r *resultRepository) AddRoundResults(
	_ context.Context, results domain.RoundResults,
) error {
	return r.store.Upsert(results.Round, results)
}

func (r *resultRepository) GetRoundResults(
	_ context.Context, round uint64,
) (*domain.RoundResults, error) {
	var results domain.RoundResults
	if err := r.store.Get(round, &results); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("results of round %d: %w", round, domain.ErrNotFound)
		}
		return nil, err
	}
	return &results, nil
}

func (r *resultRepository) AddFinalization(
	_ context.Context, finalization domain.Finalization,
) error {
	key := finalizationKey(finalization.Scope, finalization.Id)
	return r.store.Upsert(key, finalizationDTO{finalization, key})
}

func (r *resultRepository) GetFinalization(
	_ context.Context, scope string, id uint64,
) (*domain.Finalization, error) {
	var dto finalizationDTO
	if err := r.store.Get(finalizationKey(scope, id), &dto); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("finalization of %s %d: %w", scope, id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &dto.Finalization, nil
}

func (r *resultRepository) Close() {
	// nolint
	r.store.Close()
}

func finalizationKey(scope string, id uint64) string {
	return fmt.Sprintf("%s:%d", scope, id)
}
