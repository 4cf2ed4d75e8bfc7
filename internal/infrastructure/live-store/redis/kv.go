package redislivestore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// KVStore is a generic key-value store for storing JSON-encoded structs in Redis.
type KVStore[T any] struct {
	rdb    *redis.Client
	prefix string // e.g., "ownReveals:"
}

func NewRedisKVStore[T any](rdb *redis.Client, prefix string) *KVStore[T] {
	return &KVStore[T]{rdb: rdb, prefix: prefix}
}

func (s *KVStore[T]) key(id string) string {
	return s.prefix + id
}

func (s *KVStore[T]) Get(ctx context.Context, id string) (*T, error) {
	val, err := s.rdb.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *KVStore[T]) Set(ctx context.Context, id string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(id), data, 0).Err()
}

func (s *KVStore[T]) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// HashStore keeps one redis hash per round, each field holding a JSON-encoded value.
type HashStore[T any] struct {
	rdb    *redis.Client
	prefix string // e.g., "reveals:"
}

func NewRedisHashStore[T any](rdb *redis.Client, prefix string) *HashStore[T] {
	return &HashStore[T]{rdb: rdb, prefix: prefix}
}

func (s *HashStore[T]) key(round uint64) string {
	return s.prefix + strconv.FormatUint(round, 10)
}

func (s *HashStore[T]) Set(ctx context.Context, round uint64, field string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key(round), field, data).Err()
}

func (s *HashStore[T]) GetAll(ctx context.Context, round uint64) (map[string]T, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(round)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]T{}, nil
		}
		return nil, err
	}
	results := make(map[string]T, len(vals))
	for field, v := range vals {
		var item T
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, err
		}
		results[field] = item
	}
	return results, nil
}

func (s *HashStore[T]) Delete(ctx context.Context, round uint64) error {
	return s.rdb.Del(ctx, s.key(round)).Err()
}
