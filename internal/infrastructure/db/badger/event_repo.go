package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/ftso-network/ftso/internal/core/domain"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	eventStoreDir     = "round-events"
	updatesBufferSize = 64
)

// eventRecord is one entry of the append-only log of a round. Records of a
// round are keyed by round id and sequence number so they never get
// rewritten.
type eventRecord struct {
	RoundId string `badgerhold:"index"`
	Seq     int
	Type    domain.EventType
	Data    []byte
}

func eventKey(id string, seq int) string {
	return fmt.Sprintf("%s/%08d", id, seq)
}

type eventRepository struct {
	store *badgerhold.Store

	lock    *sync.RWMutex
	handler func(round *domain.Round)

	// Saves are serialized so that sequence numbers are assigned without
	// gaps and rounds reach the handler in the order they were saved.
	saveLock *sync.Mutex
	updates  chan *domain.Round
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewRoundEventRepository(config ...interface{}) (domain.RoundEventRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, eventStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round events store: %s", err)
	}
	repo := &eventRepository{
		store:    store,
		lock:     &sync.RWMutex{},
		saveLock: &sync.Mutex{},
		updates:  make(chan *domain.Round, updatesBufferSize),
		done:     make(chan struct{}),
	}
	repo.wg.Add(1)
	go repo.listen()
	return repo, nil
}

func (r *eventRepository) Save(
	_ context.Context, id string, events ...domain.RoundEvent,
) (*domain.Round, error) {
	r.saveLock.Lock()
	defer r.saveLock.Unlock()

	var allEvents []domain.RoundEvent
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		stored, err := r.find(tx, id)
		if err != nil {
			return err
		}
		for i, event := range events {
			seq := len(stored) + i
			data, err := encodeEvent(event)
			if err != nil {
				return err
			}
			record := eventRecord{
				RoundId: id,
				Seq:     seq,
				Type:    event.GetType(),
				Data:    data,
			}
			if err := r.store.TxInsert(tx, eventKey(id, seq), record); err != nil {
				return fmt.Errorf("failed to append event %d of round %s: %s", seq, id, err)
			}
		}
		allEvents = append(stored, events...)
		return nil
	}); err != nil {
		return nil, err
	}

	round := domain.NewRoundFromEvents(allEvents)
	r.publish(round)
	return round, nil
}

func (r *eventRepository) Load(
	_ context.Context, id string,
) (*domain.Round, error) {
	var events []domain.RoundEvent
	if err := r.store.Badger().View(func(tx *badger.Txn) error {
		var err error
		events, err = r.find(tx, id)
		return err
	}); err != nil {
		return nil, err
	}
	if len(events) <= 0 {
		return nil, fmt.Errorf("events of round %s: %w", id, domain.ErrRoundNotFound)
	}
	return domain.NewRoundFromEvents(events), nil
}

func (r *eventRepository) RegisterEventsHandler(
	handler func(round *domain.Round),
) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.handler = handler
}

func (r *eventRepository) Close() {
	close(r.done)
	r.wg.Wait()
	// nolint
	r.store.Close()
}

func (r *eventRepository) find(tx *badger.Txn, id string) ([]domain.RoundEvent, error) {
	var records []eventRecord
	query := badgerhold.Where("RoundId").Eq(id).Index("RoundId").SortBy("Seq")
	if err := r.store.TxFind(tx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to get events of round %s: %s", id, err)
	}

	events := make([]domain.RoundEvent, 0, len(records))
	for _, record := range records {
		event, err := decodeEvent(record.Type, record.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d of round %s: %s", record.Seq, id, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *eventRepository) publish(round *domain.Round) {
	select {
	case <-r.done:
	case r.updates <- round:
	}
}

func (r *eventRepository) listen() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case round := <-r.updates:
			r.runHandler(round)
		}
	}
}

func (r *eventRepository) runHandler(round *domain.Round) {
	r.lock.RLock()
	handler := r.handler
	r.lock.RUnlock()

	if handler == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("recovered from panic in events handler of round %d: %v", round.Epoch, rec)
		}
	}()
	handler(round)
}
