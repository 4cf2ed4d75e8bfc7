package watermilldb

import (
	"sync"

	"github.com/ftso-network/ftso/internal/core/domain"
)

type eventCache struct {
	cache map[string][]domain.RoundEvent // round id -> events
	lock  *sync.Mutex
}

func newEventCache() *eventCache {
	return &eventCache{
		cache: make(map[string][]domain.RoundEvent),
		lock:  &sync.Mutex{},
	}
}

// add appends the events and returns a copy of all those cached for the id.
func (c *eventCache) add(id string, events []domain.RoundEvent) []domain.RoundEvent {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache[id] = append(c.cache[id], events...)
	return append([]domain.RoundEvent{}, c.cache[id]...)
}

func (c *eventCache) get(id string) []domain.RoundEvent {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([]domain.RoundEvent{}, c.cache[id]...)
}

func (c *eventCache) remove(id string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.cache, id)
}
