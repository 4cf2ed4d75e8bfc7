package redislivestore

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	commitsPrefix = "commitsStore:"
	revealsPrefix = "revealsStore:"
)

type commitsStore struct {
	commits *HashStore[common.Hash]
}

func NewCommitsStore(rdb *redis.Client) ports.CommitsStore {
	return &commitsStore{NewRedisHashStore[common.Hash](rdb, commitsPrefix)}
}

func (s *commitsStore) Set(round uint64, voter common.Address, commitHash common.Hash) error {
	return s.commits.Set(context.Background(), round, voter.Hex(), &commitHash)
}

func (s *commitsStore) Get(round uint64) (map[common.Address]common.Hash, error) {
	vals, err := s.commits.GetAll(context.Background(), round)
	if err != nil {
		return nil, fmt.Errorf("failed to get commits of round %d: %s", round, err)
	}
	commits := make(map[common.Address]common.Hash, len(vals))
	for voter, hash := range vals {
		commits[common.HexToAddress(voter)] = hash
	}
	return commits, nil
}

func (s *commitsStore) Delete(round uint64) error {
	return s.commits.Delete(context.Background(), round)
}

type revealsStore struct {
	reveals *HashStore[domain.Reveal]
}

func NewRevealsStore(rdb *redis.Client) ports.RevealsStore {
	return &revealsStore{NewRedisHashStore[domain.Reveal](rdb, revealsPrefix)}
}

func (s *revealsStore) Set(round uint64, reveal domain.Reveal) error {
	return s.reveals.Set(context.Background(), round, reveal.Voter.Hex(), &reveal)
}

func (s *revealsStore) Get(round uint64) (map[common.Address]domain.Reveal, error) {
	vals, err := s.reveals.GetAll(context.Background(), round)
	if err != nil {
		return nil, fmt.Errorf("failed to get reveals of round %d: %s", round, err)
	}
	reveals := make(map[common.Address]domain.Reveal, len(vals))
	for _, reveal := range vals {
		reveals[reveal.Voter] = reveal
	}
	return reveals, nil
}

func (s *revealsStore) Delete(round uint64) error {
	return s.reveals.Delete(context.Background(), round)
}
