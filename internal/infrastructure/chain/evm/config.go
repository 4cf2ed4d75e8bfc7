package evmchain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultBlockBatchSize = 1000
	defaultEventBuffer    = 1024
	requestTimeout        = 10 * time.Second
)

// Backend is the subset of the ethclient api the adapters depend on.
type Backend interface {
	bind.ContractBackend
}

type Config struct {
	VotingContract   common.Address
	RewardContract   common.Address
	RegistryContract common.Address
	ChainId          *big.Int
	// PrivateKey is only required to submit transactions.
	PrivateKey *ecdsa.PrivateKey

	StartBlock     uint64
	PollInterval   time.Duration
	BlockBatchSize uint64
}

func (c Config) validate() error {
	if c.VotingContract == (common.Address{}) {
		return fmt.Errorf("missing voting contract address")
	}
	if c.RewardContract == (common.Address{}) {
		return fmt.Errorf("missing reward contract address")
	}
	if c.RegistryContract == (common.Address{}) {
		return fmt.Errorf("missing registry contract address")
	}
	return nil
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.PollInterval
}

func (c Config) blockBatchSize() uint64 {
	if c.BlockBatchSize == 0 {
		return defaultBlockBatchSize
	}
	return c.BlockBatchSize
}
