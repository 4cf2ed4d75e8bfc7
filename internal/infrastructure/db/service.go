package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	badgerdb "github.com/ftso-network/ftso/internal/infrastructure/db/badger"
	sqlitedb "github.com/ftso-network/ftso/internal/infrastructure/db/sqlite"
	watermilldb "github.com/ftso-network/ftso/internal/infrastructure/db/watermill"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.RoundEventRepository, error){
		"badger":    badgerdb.NewRoundEventRepository,
		"watermill": watermilldb.NewRoundEventRepository,
	}
	roundStoreTypes = map[string]func(...interface{}) (domain.RoundRepository, error){
		"badger": badgerdb.NewRoundRepository,
		"sqlite": sqlitedb.NewRoundRepository,
	}
	resultStoreTypes = map[string]func(...interface{}) (domain.ResultRepository, error){
		"badger": badgerdb.NewResultRepository,
		"sqlite": sqlitedb.NewResultRepository,
	}
	claimStoreTypes = map[string]func(...interface{}) (domain.ClaimRepository, error){
		"badger": badgerdb.NewClaimRepository,
		"sqlite": sqlitedb.NewClaimRepository,
	}
)

const (
	SqliteDbFile = "sqlite.db"

	migrationsDir = "migration"
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore  domain.RoundEventRepository
	roundStore  domain.RoundRepository
	resultStore domain.ResultRepository
	claimStore  domain.ClaimRepository
}

// NewService opens the stores and keeps the round projection in sync with
// the event store.
func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid event store type: %s", config.EventStoreType)
	}
	roundStoreFactory, ok := roundStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	resultStoreFactory, ok := resultStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	claimStoreFactory, ok := claimStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	if config.DataStoreType == "sqlite" {
		if err := migrateSqlite(config.DataStoreConfig); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
	}

	eventStore, err := eventStoreFactory(config.EventStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}
	roundStore, err := roundStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create round store: %w", err)
	}
	resultStore, err := resultStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create result store: %w", err)
	}
	claimStore, err := claimStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create claim store: %w", err)
	}

	svc := &service{
		eventStore:  eventStore,
		roundStore:  roundStore,
		resultStore: resultStore,
		claimStore:  claimStore,
	}
	eventStore.RegisterEventsHandler(svc.updateProjectionStore)
	return svc, nil
}

func (s *service) Events() domain.RoundEventRepository {
	return s.eventStore
}

func (s *service) Rounds() domain.RoundRepository {
	return s.roundStore
}

func (s *service) Results() domain.ResultRepository {
	return s.resultStore
}

func (s *service) Claims() domain.ClaimRepository {
	return s.claimStore
}

func (s *service) Close() {
	s.eventStore.Close()
	s.roundStore.Close()
	s.resultStore.Close()
	s.claimStore.Close()
}

func (s *service) updateProjectionStore(round *domain.Round) {
	if err := s.roundStore.AddOrUpdateRound(context.Background(), *round); err != nil {
		log.WithError(err).Warnf("failed to update projection of round %d", round.Epoch)
		return
	}
	log.Debugf("updated projection of round %d at version %d", round.Epoch, round.Version)
}

func migrateSqlite(config []interface{}) error {
	if len(config) != 1 {
		return errors.New("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return errors.New("invalid config, expected db at 0")
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	source, err := iofs.New(sqlitedb.Migrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate up: %w", err)
	}

	return nil
}
