package redislivestore

import (
	"github.com/redis/go-redis/v9"

	"github.com/ftso-network/ftso/internal/core/ports"
)

func NewLiveStore(rdb *redis.Client, numOfRetries int) ports.LiveStore {
	return &redisLiveStore{
		commitsStore:    NewCommitsStore(rdb),
		revealsStore:    NewRevealsStore(rdb),
		ownRevealsStore: NewOwnRevealsStore(rdb),
		signaturesStore: NewSignaturesStore(rdb, numOfRetries),
	}
}

func (s *redisLiveStore) Commits() ports.CommitsStore       { return s.commitsStore }
func (s *redisLiveStore) Reveals() ports.RevealsStore       { return s.revealsStore }
func (s *redisLiveStore) OwnReveals() ports.OwnRevealsStore { return s.ownRevealsStore }
func (s *redisLiveStore) Signatures() ports.SignaturesStore { return s.signaturesStore }

type redisLiveStore struct {
	commitsStore    ports.CommitsStore
	revealsStore    ports.RevealsStore
	ownRevealsStore ports.OwnRevealsStore
	signaturesStore ports.SignaturesStore
}
