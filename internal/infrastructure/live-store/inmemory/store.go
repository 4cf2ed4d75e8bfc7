package inmemorylivestore

import (
	"github.com/ftso-network/ftso/internal/core/ports"
)

func NewLiveStore() ports.LiveStore {
	return &inMemoryLiveStore{
		commitsStore:    NewCommitsStore(),
		revealsStore:    NewRevealsStore(),
		ownRevealsStore: NewOwnRevealsStore(),
		signaturesStore: NewSignaturesStore(),
	}
}

func (s *inMemoryLiveStore) Commits() ports.CommitsStore       { return s.commitsStore }
func (s *inMemoryLiveStore) Reveals() ports.RevealsStore       { return s.revealsStore }
func (s *inMemoryLiveStore) OwnReveals() ports.OwnRevealsStore { return s.ownRevealsStore }
func (s *inMemoryLiveStore) Signatures() ports.SignaturesStore { return s.signaturesStore }

type inMemoryLiveStore struct {
	commitsStore    ports.CommitsStore
	revealsStore    ports.RevealsStore
	ownRevealsStore ports.OwnRevealsStore
	signaturesStore ports.SignaturesStore
}
