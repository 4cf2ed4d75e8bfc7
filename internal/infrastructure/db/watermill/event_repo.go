package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ftso-network/ftso/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const (
	metadataRoundId   = "round_id"
	metadataEventType = "event_type"
)

// eventRepository keeps the events of the rounds in progress in memory and
// publishes every saved event on the round topic. The events of a round are
// dropped once it reaches a final stage.
type eventRepository struct {
	publisher message.Publisher
	cache     *eventCache

	handler     func(round *domain.Round)
	handlerLock *sync.Mutex
	wg          sync.WaitGroup
}

func NewWatermillEventRepository(publisher message.Publisher) domain.RoundEventRepository {
	return &eventRepository{
		publisher:   publisher,
		cache:       newEventCache(),
		handlerLock: &sync.Mutex{},
	}
}

// NewRoundEventRepository opens the repository from the generic store config,
// made of the publisher at position 0.
func NewRoundEventRepository(config ...interface{}) (domain.RoundEventRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	publisher, ok := config[0].(message.Publisher)
	if !ok {
		return nil, fmt.Errorf("invalid config, expected publisher at 0")
	}
	return NewWatermillEventRepository(publisher), nil
}

func (e *eventRepository) Save(
	_ context.Context, id string, events ...domain.RoundEvent,
) (*domain.Round, error) {
	if err := e.publish(id, events); err != nil {
		return nil, fmt.Errorf("failed to publish events of round %s: %w", id, err)
	}

	allEvents := e.cache.add(id, events)
	round := domain.NewRoundFromEvents(allEvents)
	e.dispatch(round)

	if len(events) > 0 && noMoreEventsAfter(events[len(events)-1].GetType()) {
		e.cache.remove(id)
	}
	return round, nil
}

func (e *eventRepository) Load(_ context.Context, id string) (*domain.Round, error) {
	events := e.cache.get(id)
	if len(events) <= 0 {
		return nil, domain.ErrRoundNotFound
	}
	return domain.NewRoundFromEvents(events), nil
}

func (e *eventRepository) RegisterEventsHandler(handler func(round *domain.Round)) {
	e.handlerLock.Lock()
	defer e.handlerLock.Unlock()

	e.handler = handler
}

func (e *eventRepository) Close() {
	e.wg.Wait()
	//nolint:errcheck
	e.publisher.Close()
}

func (e *eventRepository) dispatch(round *domain.Round) {
	e.handlerLock.Lock()
	handler := e.handler
	e.handlerLock.Unlock()

	if handler == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		handler(round)
	}()
}

func (e *eventRepository) publish(id string, events []domain.RoundEvent) error {
	messages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			log.WithError(err).Warnf("failed to encode event of round %s", id)
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(metadataRoundId, id)
		msg.Metadata.Set(metadataEventType, strconv.Itoa(int(event.GetType())))
		messages = append(messages, msg)
	}
	return e.publisher.Publish(domain.RoundTopic, messages...)
}

func noMoreEventsAfter(eventType domain.EventType) bool {
	return eventType == domain.EventTypeRoundFailed ||
		eventType == domain.EventTypeRoundFinalized
}
