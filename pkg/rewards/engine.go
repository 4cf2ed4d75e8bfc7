package rewards

import (
	"fmt"
	"sync"

	"github.com/ftso-network/ftso/pkg/roundclock"
	log "github.com/sirupsen/logrus"
)

// Engine owns the registered offers and the cumulative claims of the current
// reward epoch. Rounds must be processed in strictly increasing order without
// gaps. Accessors return copies.
type Engine struct {
	clock  *roundclock.Clock
	params Params

	lock           sync.RWMutex
	offers         map[uint64][]Offer
	registered     map[uint64]struct{}
	processed      bool
	lastRound      uint64
	currentEpoch   uint64
	cumulative     []Claim
	closedEpochs   map[uint64][]Claim
	roundClaims    map[uint64][]Claim
	retainedRounds uint64
}

func NewEngine(clock *roundclock.Clock, params Params) (*Engine, error) {
	if clock == nil {
		return nil, fmt.Errorf("missing round clock")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		clock:          clock,
		params:         params,
		offers:         make(map[uint64][]Offer),
		registered:     make(map[uint64]struct{}),
		closedEpochs:   make(map[uint64][]Claim),
		roundClaims:    make(map[uint64][]Claim),
		retainedRounds: clock.RoundsPerRewardEpoch(),
	}, nil
}

func (e *Engine) Params() Params {
	return e.params
}

// RegisterOffers sets the offers of a reward epoch. It fails if offers were
// ever registered for the epoch, even after the epoch closed.
func (e *Engine) RegisterOffers(rewardEpoch uint64, offers []Offer) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if _, ok := e.registered[rewardEpoch]; ok {
		return SequencingError{
			Op:  "register offers",
			Msg: fmt.Sprintf("offers for reward epoch %d already registered", rewardEpoch),
		}
	}
	stored := make([]Offer, len(offers))
	copy(stored, offers)
	e.offers[rewardEpoch] = stored
	e.registered[rewardEpoch] = struct{}{}
	return nil
}

// HasOffers tells whether the offer set of the reward epoch was registered.
func (e *Engine) HasOffers(rewardEpoch uint64) bool {
	e.lock.RLock()
	defer e.lock.RUnlock()
	_, ok := e.registered[rewardEpoch]
	return ok
}

// ProcessRound computes the claims and penalties of a round and merges them
// into the cumulative claims of its reward epoch. It returns the claims of the
// round before merging.
func (e *Engine) ProcessRound(data RoundData) ([]Claim, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.processed && data.Round != e.lastRound+1 {
		return nil, SequencingError{Op: "process round", Expected: e.lastRound + 1, Got: data.Round}
	}

	ctx, err := e.roundContext(data)
	if err != nil {
		return nil, err
	}

	// Nothing is committed until the round is fully computed, a failing round
	// leaves the engine as it was.
	rollover := !e.processed || ctx.RewardEpoch != e.currentEpoch
	base := e.cumulative
	if rollover {
		base = nil
	}

	claims, err := ClaimsForRound(e.params, ctx)
	if err != nil {
		return nil, err
	}
	penalties, err := Penalties(e.params, ctx)
	if err != nil {
		return nil, err
	}
	roundClaims := append(claims, penalties...)

	all := make([]Claim, 0, len(base)+len(roundClaims))
	all = append(all, base...)
	all = append(all, roundClaims...)
	cumulative, err := ApplyPenalties(all, e.params.BurnAddress, ctx.Round)
	if err != nil {
		return nil, err
	}

	if rollover {
		if e.processed {
			e.closedEpochs[e.currentEpoch] = e.cumulative
			delete(e.offers, e.currentEpoch)
			if e.currentEpoch >= 2 {
				delete(e.closedEpochs, e.currentEpoch-2)
			}
		}
		e.currentEpoch = ctx.RewardEpoch
	}
	e.cumulative = cumulative
	e.roundClaims[ctx.Round] = roundClaims
	if ctx.Round >= e.retainedRounds {
		delete(e.roundClaims, ctx.Round-e.retainedRounds)
	}
	e.processed = true
	e.lastRound = ctx.Round

	log.Debugf(
		"processed rewards for round %d: %d claims, %d penalties, %d cumulative claims",
		ctx.Round, len(claims), len(penalties), len(cumulative),
	)
	return copyClaims(roundClaims), nil
}

// LastProcessedRound returns false if no round was processed yet.
func (e *Engine) LastProcessedRound() (uint64, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.lastRound, e.processed
}

// Cumulative returns the claims accumulated so far for the given reward epoch.
func (e *Engine) Cumulative(rewardEpoch uint64) []Claim {
	e.lock.RLock()
	defer e.lock.RUnlock()

	if e.processed && rewardEpoch == e.currentEpoch {
		return copyClaims(e.cumulative)
	}
	return copyClaims(e.closedEpochs[rewardEpoch])
}

func (e *Engine) RoundClaims(round uint64) []Claim {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return copyClaims(e.roundClaims[round])
}

func (e *Engine) roundContext(data RoundData) (RoundContext, error) {
	ctx := RoundContext{
		RoundData:   data,
		RewardEpoch: e.clock.RewardEpochId(data.Round),
	}
	// rounds before the first rewarded one carry no offers
	if data.Round < e.clock.Config().FirstRewardedRound {
		return ctx, nil
	}

	offers := e.offers[ctx.RewardEpoch]
	rounds := e.clock.RoundsPerRewardEpoch()
	index := data.Round - e.clock.FirstRoundOf(ctx.RewardEpoch)
	ctx.Offers = make([]Offer, 0, len(offers))
	for _, offer := range offers {
		apportioned, err := Apportion(offer, rounds, index)
		if err != nil {
			return RoundContext{}, err
		}
		ctx.Offers = append(ctx.Offers, apportioned)
	}
	return ctx, nil
}
