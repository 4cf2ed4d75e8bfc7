package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const roundStoreDir = "rounds"

// roundRecord is the projection of a round keyed by its epoch. Id is indexed
// for lookups coming from the event log.
type roundRecord struct {
	Id                string `badgerhold:"index"`
	StartingTimestamp int64  `badgerhold:"index"`
	Round             domain.Round
}

type roundRepository struct {
	store *badgerhold.Store
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, roundStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round store: %s", err)
	}

	return &roundRepository{store}, nil
}

// AddOrUpdateRound ignores updates older than the stored round, events
// handlers may deliver them out of order.
func (r *roundRepository) AddOrUpdateRound(
	_ context.Context, round domain.Round,
) error {
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var stored roundRecord
		err := r.store.TxGet(tx, round.Epoch, &stored)
		if err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to get round %d: %s", round.Epoch, err)
		}
		if err == nil && stored.Id == round.Id && stored.Round.Version > round.Version {
			return nil
		}

		record := roundRecord{
			Id:                round.Id,
			StartingTimestamp: round.StartingTimestamp,
			Round:             round,
		}
		return r.store.TxUpsert(tx, round.Epoch, record)
	})
}

func (r *roundRepository) GetRoundWithId(
	_ context.Context, id string,
) (*domain.Round, error) {
	var records []roundRecord
	query := badgerhold.Where("Id").Eq(id).Index("Id")
	if err := r.store.Find(&records, query); err != nil {
		return nil, err
	}
	if len(records) <= 0 {
		return nil, fmt.Errorf("round with id %s: %w", id, domain.ErrRoundNotFound)
	}
	return &records[0].Round, nil
}

func (r *roundRepository) GetRoundWithEpoch(
	_ context.Context, epoch uint64,
) (*domain.Round, error) {
	var record roundRecord
	if err := r.store.Get(epoch, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("round %d: %w", epoch, domain.ErrRoundNotFound)
		}
		return nil, err
	}
	return &record.Round, nil
}

func (r *roundRepository) GetRoundsIds(
	_ context.Context, startedAfter int64, startedBefore int64,
) ([]string, error) {
	query := badgerhold.Where("StartingTimestamp").Ge(int64(0)).Index("StartingTimestamp")
	if startedAfter > 0 {
		query = query.And("StartingTimestamp").Gt(startedAfter)
	}
	if startedBefore > 0 {
		query = query.And("StartingTimestamp").Lt(startedBefore)
	}

	var records []roundRecord
	if err := r.store.Find(&records, query); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.Id)
	}
	return ids, nil
}

func (r *roundRepository) Close() {
	// nolint
	r.store.Close()
}
