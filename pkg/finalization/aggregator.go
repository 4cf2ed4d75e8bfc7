package finalization

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Scope         Scope
	Recoverer     SignerRecoverer
	Weights       WeightSource
	ThresholdBips uint64
	Sink          Finalizer
	// RewardEpochOf maps an id of the scope to the reward epoch whose weights
	// apply. Defaults to the identity.
	RewardEpochOf func(id uint64) uint64
}

type candidate struct {
	weight     amount.Amount
	signers    []common.Address
	signatures [][]byte
}

type idState struct {
	status     Status
	signers    map[common.Address]struct{}
	candidates map[common.Hash]*candidate
	quorum     *Quorum
	record     *FinalizationRecord
}

type epochWeights struct {
	weights   map[common.Address]amount.Amount
	threshold amount.Amount
}

type Aggregator struct {
	cfg Config

	lock         sync.RWMutex
	states       map[uint64]*idState
	weights      map[uint64]epochWeights
	watermark    uint64
	hasWatermark bool

	// ids below the floor were pruned, their signatures and finalizations
	// are dropped
	prunedBelow uint64
}

func New(cfg Config) (*Aggregator, error) {
	if cfg.Recoverer == nil {
		return nil, fmt.Errorf("missing signer recoverer")
	}
	if cfg.Weights == nil {
		return nil, fmt.Errorf("missing weight source")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("missing finalization sink")
	}
	if cfg.ThresholdBips <= 0 || cfg.ThresholdBips > BipsDenominator {
		return nil, fmt.Errorf("threshold bips must be in range (0, %d]", BipsDenominator)
	}
	if cfg.RewardEpochOf == nil {
		cfg.RewardEpochOf = func(id uint64) uint64 { return id }
	}
	return &Aggregator{
		cfg:     cfg,
		states:  make(map[uint64]*idState),
		weights: make(map[uint64]epochWeights),
	}, nil
}

func (a *Aggregator) Scope() Scope {
	return a.cfg.Scope
}

// OnSignature counts a signature towards its root. The first time a root's
// distinct signer weight strictly exceeds the threshold, the quorum is
// submitted and returned. Submission failures are logged, not returned.
func (a *Aggregator) OnSignature(ctx context.Context, sig SignatureRecord) (*Quorum, error) {
	if a.isPruned(sig.Id) || a.Status(sig.Id) == StatusFinalized {
		return nil, nil
	}

	signer, err := a.cfg.Recoverer.RecoverSigner(sig.Root, sig.Signature)
	if err != nil {
		return nil, err
	}
	weights, err := a.getWeights(ctx, a.cfg.RewardEpochOf(sig.Id))
	if err != nil {
		return nil, err
	}

	quorum := a.addSignature(sig, signer, weights)
	if quorum == nil {
		return nil, nil
	}

	log.Infof(
		"%s %d reached quorum on root %s with %d signers",
		a.cfg.Scope, quorum.Id, quorum.Root.Hex(), len(quorum.Signers),
	)
	if err := a.cfg.Sink.Finalize(ctx, *quorum); err != nil {
		log.WithError(TransientSubmissionError{
			Action: fmt.Sprintf("finalize %s", a.cfg.Scope),
			Round:  quorum.Id,
			Err:    err,
		}).Warn("finalization not submitted")
	}
	return quorum, nil
}

func (a *Aggregator) addSignature(
	sig SignatureRecord, signer common.Address, weights epochWeights,
) *Quorum {
	a.lock.Lock()
	defer a.lock.Unlock()

	if sig.Id < a.prunedBelow {
		return nil
	}
	state := a.state(sig.Id)
	if state.status == StatusFinalized {
		return nil
	}
	if _, ok := state.signers[signer]; ok {
		log.Debugf("dropping duplicated signature of %s for %s %d", signer.Hex(), a.cfg.Scope, sig.Id)
		return nil
	}
	weight := weights.weights[signer]
	if weight.IsZero() {
		log.Debugf("dropping signature of unregistered signer %s for %s %d", signer.Hex(), a.cfg.Scope, sig.Id)
		return nil
	}
	state.signers[signer] = struct{}{}

	c, ok := state.candidates[sig.Root]
	if !ok {
		c = &candidate{}
		state.candidates[sig.Root] = c
	}
	c.weight, _ = c.weight.Add(weight)
	c.signers = append(c.signers, signer)
	c.signatures = append(c.signatures, sig.Signature)

	if !c.weight.Gt(weights.threshold) {
		return nil
	}

	quorum := &Quorum{
		Scope:      a.cfg.Scope,
		Id:         sig.Id,
		Root:       sig.Root,
		Signers:    append([]common.Address(nil), c.signers...),
		Signatures: append([][]byte(nil), c.signatures...),
		Weight:     c.weight,
	}
	state.status = StatusFinalized
	state.quorum = quorum
	state.candidates = nil
	return quorum
}

// OnFinalization records a finalization observed on chain. It returns true
// if one was already recorded for the id, or if the id was pruned.
func (a *Aggregator) OnFinalization(record FinalizationRecord) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	if record.Id < a.prunedBelow {
		log.Debugf("dropping finalization for pruned %s %d", a.cfg.Scope, record.Id)
		return true
	}
	state := a.state(record.Id)
	if state.record != nil {
		log.Warnf(
			"duplicated finalization for %s %d on root %s, ignoring",
			a.cfg.Scope, record.Id, record.Root.Hex(),
		)
		return true
	}
	r := record
	state.record = &r
	state.status = StatusFinalized
	state.candidates = nil

	if !a.hasWatermark || record.Id > a.watermark {
		a.watermark = record.Id
		a.hasWatermark = true
	}
	return false
}

func (a *Aggregator) Status(id uint64) Status {
	a.lock.RLock()
	defer a.lock.RUnlock()
	if state, ok := a.states[id]; ok {
		return state.status
	}
	return StatusOpen
}

// Finalized returns the finalization observed on chain for the id.
func (a *Aggregator) Finalized(id uint64) (FinalizationRecord, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	state, ok := a.states[id]
	if !ok || state.record == nil {
		return FinalizationRecord{}, false
	}
	return *state.record, true
}

// Quorum returns the quorum detected locally for the id.
func (a *Aggregator) Quorum(id uint64) (Quorum, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	state, ok := a.states[id]
	if !ok || state.quorum == nil {
		return Quorum{}, false
	}
	q := *state.quorum
	q.Signers = append([]common.Address(nil), q.Signers...)
	q.Signatures = append([][]byte(nil), q.Signatures...)
	return q, true
}

// Watermark is the highest id confirmed on chain. It never decreases.
func (a *Aggregator) Watermark() (uint64, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.watermark, a.hasWatermark
}

// Prune drops the state of every id below the given one. Later signatures
// and finalizations for those ids are ignored. The floor never decreases.
func (a *Aggregator) Prune(belowId uint64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if belowId > a.prunedBelow {
		a.prunedBelow = belowId
	}
	for id := range a.states {
		if id < belowId {
			delete(a.states, id)
		}
	}
	for epoch := range a.weights {
		if epoch < a.cfg.RewardEpochOf(belowId) {
			delete(a.weights, epoch)
		}
	}
}

func (a *Aggregator) isPruned(id uint64) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return id < a.prunedBelow
}

func (a *Aggregator) state(id uint64) *idState {
	state, ok := a.states[id]
	if !ok {
		state = &idState{
			status:     StatusOpen,
			signers:    make(map[common.Address]struct{}),
			candidates: make(map[common.Hash]*candidate),
		}
		a.states[id] = state
	}
	return state
}

func (a *Aggregator) getWeights(ctx context.Context, rewardEpoch uint64) (epochWeights, error) {
	a.lock.RLock()
	w, ok := a.weights[rewardEpoch]
	a.lock.RUnlock()
	if ok {
		return w, nil
	}

	weights, err := a.cfg.Weights.GetWeights(ctx, rewardEpoch)
	if err != nil {
		return epochWeights{}, fmt.Errorf(
			"failed to get weights for reward epoch %d: %s", rewardEpoch, err,
		)
	}
	total := amount.Zero()
	for _, weight := range weights {
		if total, err = total.Add(weight); err != nil {
			return epochWeights{}, err
		}
	}
	threshold, err := total.MulDiv(amount.New(a.cfg.ThresholdBips), amount.New(BipsDenominator))
	if err != nil {
		return epochWeights{}, err
	}

	w = epochWeights{weights, threshold}
	a.lock.Lock()
	a.weights[rewardEpoch] = w
	a.lock.Unlock()
	return w, nil
}
