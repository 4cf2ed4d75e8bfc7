package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
)

const RoundTopic = "round"

type RoundEvent interface {
	GetTopic() string
	GetType() EventType
}

func (r RoundStarted) GetTopic() string    { return RoundTopic }
func (r PricesCommitted) GetTopic() string { return RoundTopic }
func (r PricesRevealed) GetTopic() string  { return RoundTopic }
func (r RoundAggregated) GetTopic() string { return RoundTopic }
func (r RootSigned) GetTopic() string      { return RoundTopic }
func (r RoundFinalized) GetTopic() string  { return RoundTopic }
func (r RoundFailed) GetTopic() string     { return RoundTopic }

func (r RoundStarted) GetType() EventType    { return EventTypeRoundStarted }
func (r PricesCommitted) GetType() EventType { return EventTypePricesCommitted }
func (r PricesRevealed) GetType() EventType  { return EventTypePricesRevealed }
func (r RoundAggregated) GetType() EventType { return EventTypeRoundAggregated }
func (r RootSigned) GetType() EventType      { return EventTypeRootSigned }
func (r RoundFinalized) GetType() EventType  { return EventTypeRoundFinalized }
func (r RoundFailed) GetType() EventType     { return EventTypeRoundFailed }

type RoundStarted struct {
	Id          string
	Epoch       uint64
	RewardEpoch uint64
	Timestamp   int64
}

type PricesCommitted struct {
	Id         string
	CommitHash common.Hash
	Prices     []uint32
}

type PricesRevealed struct {
	Id        string
	Timestamp int64
}

type RoundAggregated struct {
	Id               string
	NumReveals       int
	NumFailedReveals int
	MerkleRoot       common.Hash
	Random           amount.Amount
	SecureRandom     bool
}

type RootSigned struct {
	Id         string
	MerkleRoot common.Hash
	Signature  []byte
}

type RoundFinalized struct {
	Id        string
	Root      common.Hash
	Finalizer common.Address
	Timestamp int64
}

type RoundFailed struct {
	Id        string
	Err       string
	Timestamp int64
}
