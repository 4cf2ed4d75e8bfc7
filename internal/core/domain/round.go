package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/google/uuid"
)

const (
	UndefinedStage RoundStage = iota
	CommitStage
	RevealStage
	AggregationStage
	SigningStage
	FinalizationStage
)

type RoundStage int

func (s RoundStage) String() string {
	switch s {
	case CommitStage:
		return "COMMIT_STAGE"
	case RevealStage:
		return "REVEAL_STAGE"
	case AggregationStage:
		return "AGGREGATION_STAGE"
	case SigningStage:
		return "SIGNING_STAGE"
	case FinalizationStage:
		return "FINALIZATION_STAGE"
	default:
		return "UNDEFINED_STAGE"
	}
}

type Stage struct {
	Code   RoundStage
	Ended  bool
	Failed bool
}

// Round is the node's view of one price epoch, rebuilt from its events.
type Round struct {
	Id                string
	Epoch             uint64
	RewardEpoch       uint64
	StartingTimestamp int64
	EndingTimestamp   int64
	Stage             Stage
	CommitHash        common.Hash
	Prices            []uint32
	NumReveals        int
	NumFailedReveals  int
	MerkleRoot        common.Hash
	Random            amount.Amount
	SecureRandom      bool
	Signature         []byte
	FinalizedRoot     common.Hash
	Finalizer         common.Address
	FailReason        string
	Version           uint
	changes           []RoundEvent
}

func NewRound(epoch, rewardEpoch uint64) *Round {
	return &Round{
		Id:          uuid.New().String(),
		Epoch:       epoch,
		RewardEpoch: rewardEpoch,
		changes:     make([]RoundEvent, 0),
	}
}

func NewRoundFromEvents(events []RoundEvent) *Round {
	r := &Round{}

	for _, event := range events {
		r.On(event, true)
	}

	r.changes = append([]RoundEvent{}, events...)

	return r
}

func (r *Round) Events() []RoundEvent {
	return r.changes
}

func (r *Round) On(event RoundEvent, replayed bool) {
	switch e := event.(type) {
	case RoundStarted:
		r.Stage.Code = CommitStage
		r.Id = e.Id
		r.Epoch = e.Epoch
		r.RewardEpoch = e.RewardEpoch
		r.StartingTimestamp = e.Timestamp
	case PricesCommitted:
		r.CommitHash = e.CommitHash
		r.Prices = append([]uint32{}, e.Prices...)
	case PricesRevealed:
		r.Stage.Code = RevealStage
	case RoundAggregated:
		r.Stage.Code = AggregationStage
		r.NumReveals = e.NumReveals
		r.NumFailedReveals = e.NumFailedReveals
		r.MerkleRoot = e.MerkleRoot
		r.Random = e.Random
		r.SecureRandom = e.SecureRandom
	case RootSigned:
		r.Stage.Code = SigningStage
		r.Signature = append([]byte{}, e.Signature...)
	case RoundFinalized:
		r.Stage.Code = FinalizationStage
		r.Stage.Ended = true
		r.FinalizedRoot = e.Root
		r.Finalizer = e.Finalizer
		r.EndingTimestamp = e.Timestamp
	case RoundFailed:
		r.Stage.Failed = true
		r.FailReason = e.Err
		r.EndingTimestamp = e.Timestamp
	}

	if replayed {
		r.Version++
	}
}

func (r *Round) StartCommit() ([]RoundEvent, error) {
	empty := Stage{}
	if r.Stage != empty {
		return nil, fmt.Errorf("not in a valid stage to start commit")
	}

	event := RoundStarted{
		Id:          r.Id,
		Epoch:       r.Epoch,
		RewardEpoch: r.RewardEpoch,
		Timestamp:   time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Commit(commitHash common.Hash, prices []uint32) ([]RoundEvent, error) {
	if r.Stage.Code != CommitStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to commit prices")
	}
	if len(prices) <= 0 {
		return nil, fmt.Errorf("missing prices to commit")
	}
	if commitHash == (common.Hash{}) {
		return nil, fmt.Errorf("missing commit hash")
	}
	if r.HasCommitted() {
		return nil, fmt.Errorf("prices already committed")
	}

	event := PricesCommitted{
		Id:         r.Id,
		CommitHash: commitHash,
		Prices:     prices,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Reveal() ([]RoundEvent, error) {
	if r.Stage.Code != CommitStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to reveal prices")
	}
	if !r.HasCommitted() {
		return nil, fmt.Errorf("no prices committed to reveal")
	}

	event := PricesRevealed{
		Id:        r.Id,
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

// Aggregate is allowed straight from the commit stage, a node that did not
// commit still aggregates the others' reveals.
func (r *Round) Aggregate(
	numReveals, numFailedReveals int, merkleRoot common.Hash, random amount.Amount, secure bool,
) ([]RoundEvent, error) {
	if (r.Stage.Code != CommitStage && r.Stage.Code != RevealStage) || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to aggregate round")
	}
	if merkleRoot == (common.Hash{}) {
		return nil, fmt.Errorf("missing merkle root")
	}

	event := RoundAggregated{
		Id:               r.Id,
		NumReveals:       numReveals,
		NumFailedReveals: numFailedReveals,
		MerkleRoot:       merkleRoot,
		Random:           random,
		SecureRandom:     secure,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Sign(signature []byte) ([]RoundEvent, error) {
	if r.Stage.Code != AggregationStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to sign merkle root")
	}
	if len(signature) <= 0 {
		return nil, fmt.Errorf("missing signature")
	}

	event := RootSigned{
		Id:         r.Id,
		MerkleRoot: r.MerkleRoot,
		Signature:  signature,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) EndFinalization(root common.Hash, finalizer common.Address) ([]RoundEvent, error) {
	if root == (common.Hash{}) {
		return nil, fmt.Errorf("missing finalized merkle root")
	}
	if r.Stage.Code == UndefinedStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to end finalization")
	}
	if r.Stage.Ended {
		return nil, fmt.Errorf("round already finalized")
	}

	event := RoundFinalized{
		Id:        r.Id,
		Root:      root,
		Finalizer: finalizer,
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Fail(err error) []RoundEvent {
	if r.Stage.Failed {
		return nil
	}
	event := RoundFailed{
		Id:        r.Id,
		Err:       err.Error(),
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}
}

func (r *Round) HasCommitted() bool {
	return r.CommitHash != (common.Hash{})
}

func (r *Round) IsStarted() bool {
	empty := Stage{}
	return !r.IsFailed() && !r.IsEnded() && r.Stage != empty
}

func (r *Round) IsEnded() bool {
	return !r.IsFailed() && r.Stage.Code == FinalizationStage && r.Stage.Ended
}

func (r *Round) IsFailed() bool {
	return r.Stage.Failed
}

// MatchesFinalization tells whether the root finalized on chain is the one
// this node computed.
func (r *Round) MatchesFinalization() bool {
	return r.IsEnded() && r.MerkleRoot == r.FinalizedRoot
}

func (r *Round) raise(event RoundEvent) {
	if r.changes == nil {
		r.changes = make([]RoundEvent, 0)
	}
	r.changes = append(r.changes, event)
	r.On(event, false)
}
