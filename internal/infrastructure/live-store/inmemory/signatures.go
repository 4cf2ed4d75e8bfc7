package inmemorylivestore

import (
	"sync"

	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
)

type signaturesStore struct {
	lock       sync.RWMutex
	signatures map[uint64][]domain.SignatureRecord
}

func NewSignaturesStore() ports.SignaturesStore {
	return &signaturesStore{
		signatures: make(map[uint64][]domain.SignatureRecord),
	}
}

func (s *signaturesStore) Add(round uint64, signature domain.SignatureRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	signature.Signature = append([]byte{}, signature.Signature...)
	s.signatures[round] = append(s.signatures[round], signature)
	return nil
}

// Get returns the signatures of the round in the order they were added.
func (s *signaturesStore) Get(round uint64) ([]domain.SignatureRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	signatures := make([]domain.SignatureRecord, 0, len(s.signatures[round]))
	for _, sig := range s.signatures[round] {
		sig.Signature = append([]byte{}, sig.Signature...)
		signatures = append(signatures, sig)
	}
	return signatures, nil
}

func (s *signaturesStore) Delete(round uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.signatures, round)
	return nil
}
