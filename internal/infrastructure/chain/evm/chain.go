package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/finalization"
	log "github.com/sirupsen/logrus"
)

// Chain submits the node's actions and reads the protocol state from the
// voting, reward and registry contracts. It serves as submission sink, chain
// reader and weight registry.
type Chain struct {
	backend    Backend
	voting     *bind.BoundContract
	reward     *bind.BoundContract
	registry   *bind.BoundContract
	transactor *bind.TransactOpts

	weightsLock *sync.RWMutex
	weights     map[uint64]map[common.Address]amount.Amount
}

func NewChain(backend Backend, cfg Config) (*Chain, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing chain backend")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var transactor *bind.TransactOpts
	if cfg.PrivateKey != nil {
		if cfg.ChainId == nil {
			return nil, fmt.Errorf("missing chain id")
		}
		var err error
		transactor, err = bind.NewKeyedTransactorWithChainID(cfg.PrivateKey, cfg.ChainId)
		if err != nil {
			return nil, fmt.Errorf("failed to create transactor: %s", err)
		}
	}

	return &Chain{
		backend:     backend,
		voting:      bind.NewBoundContract(cfg.VotingContract, contractABI, backend, backend, backend),
		reward:      bind.NewBoundContract(cfg.RewardContract, contractABI, backend, backend, backend),
		registry:    bind.NewBoundContract(cfg.RegistryContract, contractABI, backend, backend, backend),
		transactor:  transactor,
		weightsLock: &sync.RWMutex{},
		weights:     make(map[uint64]map[common.Address]amount.Amount),
	}, nil
}

func (c *Chain) SubmitCommit(ctx context.Context, round uint64, commitHash common.Hash) error {
	return c.transact(ctx, c.voting, "submit commit", round, methodCommit,
		new(big.Int).SetUint64(round), commitHash,
	)
}

func (c *Chain) SubmitReveal(
	ctx context.Context, round uint64, random amount.Amount, packedPrices []byte,
) error {
	return c.transact(ctx, c.voting, "submit reveal", round, methodReveal,
		new(big.Int).SetUint64(round), random.Big(), packedPrices,
	)
}

func (c *Chain) SubmitSignature(
	ctx context.Context, round uint64, root common.Hash, signature []byte,
) error {
	return c.transact(ctx, c.voting, "submit signature", round, methodSignRoot,
		new(big.Int).SetUint64(round), root, signature,
	)
}

func (c *Chain) SubmitRewardSignature(
	ctx context.Context, rewardEpoch uint64, root common.Hash, signature []byte,
) error {
	return c.transact(ctx, c.reward, "submit reward signature", rewardEpoch, methodSignRewardRoot,
		new(big.Int).SetUint64(rewardEpoch), root, signature,
	)
}

func (c *Chain) Finalize(ctx context.Context, quorum finalization.Quorum) error {
	return c.transact(ctx, c.voting, "finalize", quorum.Id, methodFinalize,
		new(big.Int).SetUint64(quorum.Id), quorum.Root, quorum.Signers, quorum.Signatures,
	)
}

func (c *Chain) FinalizeRewards(ctx context.Context, quorum finalization.Quorum) error {
	return c.transact(ctx, c.reward, "finalize rewards", quorum.Id, methodFinalizeRewards,
		new(big.Int).SetUint64(quorum.Id), quorum.Root, quorum.Signers, quorum.Signatures,
	)
}

func (c *Chain) IsFinalized(ctx context.Context, round uint64) (bool, error) {
	var out []interface{}
	if err := c.voting.Call(
		&bind.CallOpts{Context: ctx}, &out, methodIsFinalized, new(big.Int).SetUint64(round),
	); err != nil {
		return false, fmt.Errorf("failed to read finalization of round %d: %w", round, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected output of %s", methodIsFinalized)
	}
	finalized, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected output of %s", methodIsFinalized)
	}
	return finalized, nil
}

func (c *Chain) LatestBlockTime(ctx context.Context) (time.Time, error) {
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest block: %w", err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

// GetWeights returns the voter weights of the reward epoch. Weights of an
// epoch never change once set, so they are fetched once.
func (c *Chain) GetWeights(
	ctx context.Context, rewardEpoch uint64,
) (map[common.Address]amount.Amount, error) {
	c.weightsLock.RLock()
	cached, ok := c.weights[rewardEpoch]
	c.weightsLock.RUnlock()
	if ok {
		return copyWeights(cached), nil
	}

	var out []interface{}
	if err := c.registry.Call(
		&bind.CallOpts{Context: ctx}, &out, methodGetVoterWeights, new(big.Int).SetUint64(rewardEpoch),
	); err != nil {
		return nil, fmt.Errorf("failed to read weights of reward epoch %d: %w", rewardEpoch, err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("unexpected output of %s", methodGetVoterWeights)
	}
	voters, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected voters in output of %s", methodGetVoterWeights)
	}
	rawWeights, ok := out[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected weights in output of %s", methodGetVoterWeights)
	}
	if len(voters) != len(rawWeights) {
		return nil, fmt.Errorf(
			"got %d voters and %d weights for reward epoch %d", len(voters), len(rawWeights), rewardEpoch,
		)
	}

	weights := make(map[common.Address]amount.Amount, len(voters))
	for i, voter := range voters {
		w, err := amount.FromBig(rawWeights[i])
		if err != nil {
			return nil, fmt.Errorf("invalid weight of voter %s: %s", voter.Hex(), err)
		}
		weights[voter] = w
	}

	c.weightsLock.Lock()
	c.weights[rewardEpoch] = weights
	c.weightsLock.Unlock()

	return copyWeights(weights), nil
}

// transact sends the contract call, retrying on errors other than reverts.
// Failures are returned as domain.TransientSubmissionError.
func (c *Chain) transact(
	ctx context.Context, contract *bind.BoundContract,
	action string, round uint64, method string, params ...interface{},
) error {
	if c.transactor == nil {
		return domain.TransientSubmissionError{
			Action: action, Round: round, Err: fmt.Errorf("no signing key configured"),
		}
	}

	opts := *c.transactor
	opts.Context = ctx

	operation := func() error {
		tx, err := contract.Transact(&opts, method, params...)
		if err != nil {
			if isRevert(err) {
				return backoff.Permanent(err)
			}
			log.WithError(err).Debugf("failed to %s for round %d, retrying", action, round)
			return err
		}
		log.Debugf("sent %s tx %s for round %d", method, tx.Hash().Hex(), round)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return domain.TransientSubmissionError{Action: action, Round: round, Err: err}
	}
	return nil
}

func isRevert(err error) bool {
	return strings.Contains(err.Error(), "execution reverted")
}

func copyWeights(weights map[common.Address]amount.Amount) map[common.Address]amount.Amount {
	cp := make(map[common.Address]amount.Amount, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	return cp
}
