package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/rewards"
)

// ProtocolEvent is an event observed on chain. Round-scoped events carry a
// price epoch id, reward-scoped ones a reward epoch id.
type ProtocolEvent interface {
	Scope() EventScope
	ScopeId() uint64
	ObservedTime() time.Time
}

type EventScope int

const (
	ScopeRound EventScope = iota
	ScopeRewardEpoch
)

func (s EventScope) String() string {
	if s == ScopeRewardEpoch {
		return "reward epoch"
	}
	return "round"
}

type CommitObserved struct {
	Round      uint64
	Voter      common.Address
	CommitHash common.Hash
	ObservedAt time.Time
}

type RevealObserved struct {
	Round        uint64
	Voter        common.Address
	Random       amount.Amount
	PackedPrices []byte
	BitVote      []byte
	ObservedAt   time.Time
}

type SignatureObserved struct {
	Round      uint64
	Root       common.Hash
	Signature  []byte
	ObservedAt time.Time
}

type FinalizationObserved struct {
	Round      uint64
	Root       common.Hash
	Finalizer  common.Address
	ObservedAt time.Time
}

type RewardOffersObserved struct {
	RewardEpoch uint64
	Offers      []rewards.Offer
	ObservedAt  time.Time
}

type RewardSignatureObserved struct {
	RewardEpoch uint64
	Root        common.Hash
	Signature   []byte
	ObservedAt  time.Time
}

type RewardFinalizationObserved struct {
	RewardEpoch uint64
	Root        common.Hash
	Finalizer   common.Address
	ObservedAt  time.Time
}

func (e CommitObserved) Scope() EventScope             { return ScopeRound }
func (e RevealObserved) Scope() EventScope             { return ScopeRound }
func (e SignatureObserved) Scope() EventScope          { return ScopeRound }
func (e FinalizationObserved) Scope() EventScope       { return ScopeRound }
func (e RewardOffersObserved) Scope() EventScope       { return ScopeRewardEpoch }
func (e RewardSignatureObserved) Scope() EventScope    { return ScopeRewardEpoch }
func (e RewardFinalizationObserved) Scope() EventScope { return ScopeRewardEpoch }

func (e CommitObserved) ScopeId() uint64             { return e.Round }
func (e RevealObserved) ScopeId() uint64             { return e.Round }
func (e SignatureObserved) ScopeId() uint64          { return e.Round }
func (e FinalizationObserved) ScopeId() uint64       { return e.Round }
func (e RewardOffersObserved) ScopeId() uint64       { return e.RewardEpoch }
func (e RewardSignatureObserved) ScopeId() uint64    { return e.RewardEpoch }
func (e RewardFinalizationObserved) ScopeId() uint64 { return e.RewardEpoch }

func (e CommitObserved) ObservedTime() time.Time             { return e.ObservedAt }
func (e RevealObserved) ObservedTime() time.Time             { return e.ObservedAt }
func (e SignatureObserved) ObservedTime() time.Time          { return e.ObservedAt }
func (e FinalizationObserved) ObservedTime() time.Time       { return e.ObservedAt }
func (e RewardOffersObserved) ObservedTime() time.Time       { return e.ObservedAt }
func (e RewardSignatureObserved) ObservedTime() time.Time    { return e.ObservedAt }
func (e RewardFinalizationObserved) ObservedTime() time.Time { return e.ObservedAt }
