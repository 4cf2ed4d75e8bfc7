package inmemorylivestore

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
)

type revealsStore struct {
	lock    sync.RWMutex
	reveals map[uint64]map[common.Address]domain.Reveal
}

func NewRevealsStore() ports.RevealsStore {
	return &revealsStore{
		reveals: make(map[uint64]map[common.Address]domain.Reveal),
	}
}

func (s *revealsStore) Set(round uint64, reveal domain.Reveal) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.reveals[round]; !ok {
		s.reveals[round] = make(map[common.Address]domain.Reveal)
	}
	s.reveals[round][reveal.Voter] = copyReveal(reveal)
	return nil
}

func (s *revealsStore) Get(round uint64) (map[common.Address]domain.Reveal, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	reveals := make(map[common.Address]domain.Reveal, len(s.reveals[round]))
	for voter, reveal := range s.reveals[round] {
		reveals[voter] = copyReveal(reveal)
	}
	return reveals, nil
}

func (s *revealsStore) Delete(round uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.reveals, round)
	return nil
}

type ownRevealsStore struct {
	lock    sync.RWMutex
	reveals map[uint64]domain.OwnReveal
}

func NewOwnRevealsStore() ports.OwnRevealsStore {
	return &ownRevealsStore{
		reveals: make(map[uint64]domain.OwnReveal),
	}
}

func (s *ownRevealsStore) Set(round uint64, reveal domain.OwnReveal) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	reveal.Prices = append([]uint32{}, reveal.Prices...)
	s.reveals[round] = reveal
	return nil
}

// Get returns nil if the node did not commit for the round.
func (s *ownRevealsStore) Get(round uint64) (*domain.OwnReveal, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	reveal, ok := s.reveals[round]
	if !ok {
		return nil, nil
	}
	reveal.Prices = append([]uint32{}, reveal.Prices...)
	return &reveal, nil
}

func (s *ownRevealsStore) Delete(round uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.reveals, round)
	return nil
}

func copyReveal(reveal domain.Reveal) domain.Reveal {
	reveal.PackedPrices = append([]byte{}, reveal.PackedPrices...)
	reveal.BitVote = append([]byte{}, reveal.BitVote...)
	return reveal
}
