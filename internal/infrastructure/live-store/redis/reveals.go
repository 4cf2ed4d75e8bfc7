package redislivestore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	ownRevealsPrefix = "ownRevealsStore:"
	signaturesPrefix = "signaturesStore:"
)

type ownRevealsStore struct {
	reveals *KVStore[domain.OwnReveal]
}

func NewOwnRevealsStore(rdb *redis.Client) ports.OwnRevealsStore {
	return &ownRevealsStore{NewRedisKVStore[domain.OwnReveal](rdb, ownRevealsPrefix)}
}

func (s *ownRevealsStore) Set(round uint64, reveal domain.OwnReveal) error {
	return s.reveals.Set(context.Background(), strconv.FormatUint(round, 10), &reveal)
}

func (s *ownRevealsStore) Get(round uint64) (*domain.OwnReveal, error) {
	return s.reveals.Get(context.Background(), strconv.FormatUint(round, 10))
}

func (s *ownRevealsStore) Delete(round uint64) error {
	return s.reveals.Delete(context.Background(), strconv.FormatUint(round, 10))
}

type signaturesStore struct {
	rdb          *redis.Client
	numOfRetries int
}

func NewSignaturesStore(rdb *redis.Client, numOfRetries int) ports.SignaturesStore {
	return &signaturesStore{rdb, numOfRetries}
}

func (s *signaturesStore) Add(round uint64, signature domain.SignatureRecord) error {
	ctx := context.Background()
	key := signaturesPrefix + strconv.FormatUint(round, 10)

	var err error
	for attempt := 0; attempt < s.numOfRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			signatures := make([]domain.SignatureRecord, 0)
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				if err := json.Unmarshal(data, &signatures); err != nil {
					return err
				}
			}

			signatures = append(signatures, signature)
			val, err := json.Marshal(signatures)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, val, 0)
				return nil
			})
			return err
		}, key)
		if err == nil {
			return nil
		}
	}
	return err
}

func (s *signaturesStore) Get(round uint64) ([]domain.SignatureRecord, error) {
	ctx := context.Background()
	data, err := s.rdb.Get(ctx, signaturesPrefix+strconv.FormatUint(round, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.SignatureRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	signatures := make([]domain.SignatureRecord, 0)
	if err := json.Unmarshal(data, &signatures); err != nil {
		return nil, err
	}
	return signatures, nil
}

func (s *signaturesStore) Delete(round uint64) error {
	return s.rdb.Del(context.Background(), signaturesPrefix+strconv.FormatUint(round, 10)).Err()
}
