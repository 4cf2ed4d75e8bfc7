package inmemorylivestore

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/ports"
)

type commitsStore struct {
	lock    sync.RWMutex
	commits map[uint64]map[common.Address]common.Hash
}

func NewCommitsStore() ports.CommitsStore {
	return &commitsStore{
		commits: make(map[uint64]map[common.Address]common.Hash),
	}
}

// Set overwrites any previous commit of the voter for the round.
func (s *commitsStore) Set(round uint64, voter common.Address, commitHash common.Hash) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.commits[round]; !ok {
		s.commits[round] = make(map[common.Address]common.Hash)
	}
	s.commits[round][voter] = commitHash
	return nil
}

func (s *commitsStore) Get(round uint64) (map[common.Address]common.Hash, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	commits := make(map[common.Address]common.Hash, len(s.commits[round]))
	for voter, hash := range s.commits[round] {
		commits[voter] = hash
	}
	return commits, nil
}

func (s *commitsStore) Delete(round uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.commits, round)
	return nil
}
