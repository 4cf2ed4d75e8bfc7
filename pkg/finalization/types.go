// Package finalization detects a weighted quorum of signatures over a merkle
// root and submits it. The same aggregator serves price epochs and reward
// epochs.
package finalization

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
)

const BipsDenominator = 10_000

type Scope uint8

const (
	ScopePriceEpoch Scope = iota
	ScopeRewardEpoch
)

func (s Scope) String() string {
	switch s {
	case ScopePriceEpoch:
		return "price epoch"
	case ScopeRewardEpoch:
		return "reward epoch"
	default:
		return "unknown"
	}
}

type Status uint8

const (
	StatusOpen Status = iota
	StatusFinalized
)

func (s Status) String() string {
	if s == StatusFinalized {
		return "FINALIZED"
	}
	return "OPEN"
}

type SignatureRecord struct {
	Id         uint64
	Root       common.Hash
	Signature  []byte
	ObservedAt time.Time
}

type FinalizationRecord struct {
	Id         uint64
	Root       common.Hash
	Finalizer  common.Address
	ObservedAt time.Time
}

// Quorum is the finalize action: the root and the signatures that carried it
// over the threshold.
type Quorum struct {
	Scope      Scope
	Id         uint64
	Root       common.Hash
	Signers    []common.Address
	Signatures [][]byte
	Weight     amount.Amount
}

type SignerRecoverer interface {
	RecoverSigner(root common.Hash, signature []byte) (common.Address, error)
}

type WeightSource interface {
	GetWeights(ctx context.Context, rewardEpoch uint64) (map[common.Address]amount.Amount, error)
}

type Finalizer interface {
	Finalize(ctx context.Context, quorum Quorum) error
}

// TransientSubmissionError is a rejected submission. It is logged and the
// action is not retried.
type TransientSubmissionError struct {
	Action string
	Round  uint64
	Err    error
}

func (e TransientSubmissionError) Error() string {
	return fmt.Sprintf("failed to %s for round %d: %s", e.Action, e.Round, e.Err)
}

func (e TransientSubmissionError) Unwrap() error {
	return e.Err
}
