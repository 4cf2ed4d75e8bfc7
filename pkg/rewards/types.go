// Package rewards computes per-round reward claims from the reward offers,
// the median results and the previous round's signers and finalizer, and
// accumulates them per reward epoch.
package rewards

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
	"github.com/ftso-network/ftso/pkg/median"
)

const BipsDenominator = 10_000

var DefaultBurnAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type ClaimType uint8

const (
	ClaimTypeFixed ClaimType = iota
	ClaimTypeWeighted
	ClaimTypePenalty
)

func (t ClaimType) String() string {
	switch t {
	case ClaimTypeFixed:
		return "FIXED"
	case ClaimTypeWeighted:
		return "WEIGHTED"
	case ClaimTypePenalty:
		return "PENALTY"
	default:
		return "UNKNOWN"
	}
}

type Claim struct {
	Type        ClaimType
	Beneficiary common.Address
	Currency    common.Address
	Amount      amount.Amount
	Round       uint64
}

func (c Claim) String() string {
	return fmt.Sprintf(
		"%s claim of %s %s for %s at round %d",
		c.Type, c.Amount, c.Currency.Hex(), c.Beneficiary.Hex(), c.Round,
	)
}

// Offer is a reward offer for one feed. Offers are registered per reward
// epoch and apportioned down to each round of the epoch.
type Offer struct {
	Feed                codec.Feed
	Currency            common.Address
	Amount              amount.Amount
	LeadProviders       []common.Address
	RewardBeltPPM       uint32
	ElasticBandWidthPPM uint32
	IqrSharePPM         uint32
	PctSharePPM         uint32
	RemainderClaimer    common.Address
}

func (o Offer) bandParams() median.BandParams {
	return median.BandParams{
		LeadProviders:       o.LeadProviders,
		RewardBeltPPM:       o.RewardBeltPPM,
		ElasticBandWidthPPM: o.ElasticBandWidthPPM,
	}
}

// RoundData is what the orchestrator knows about a round once it has been
// aggregated.
type RoundData struct {
	Round             uint64
	Results           map[string]*median.Result
	Weights           map[common.Address]amount.Amount
	PreviousFinalizer *common.Address
	PreviousSigners   []common.Address
	FailedReveals     []common.Address
}

// RoundContext is RoundData completed with the reward epoch and the offers
// apportioned to the round.
type RoundContext struct {
	RoundData
	RewardEpoch uint64
	Offers      []Offer
}

type Params struct {
	SigningBips      uint64
	FinalizationBips uint64
	PenaltyFactor    uint64
	BurnAddress      common.Address
}

func DefaultParams() Params {
	return Params{
		SigningBips:      1000,
		FinalizationBips: 1000,
		PenaltyFactor:    10,
		BurnAddress:      DefaultBurnAddress,
	}
}

func (p Params) Validate() error {
	if p.SigningBips+p.FinalizationBips > BipsDenominator {
		return fmt.Errorf(
			"signing bips (%d) plus finalization bips (%d) must not exceed %d",
			p.SigningBips, p.FinalizationBips, BipsDenominator,
		)
	}
	if p.BurnAddress == (common.Address{}) {
		return fmt.Errorf("missing burn address")
	}
	return nil
}

type claimKey struct {
	beneficiary common.Address
	currency    common.Address
	claimType   ClaimType
}

// SortClaims orders claims by beneficiary, currency and type. This is the
// canonical order of the reward claim tree.
func SortClaims(claims []Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		if c := bytes.Compare(claims[i].Beneficiary[:], claims[j].Beneficiary[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(claims[i].Currency[:], claims[j].Currency[:]); c != 0 {
			return c < 0
		}
		return claims[i].Type < claims[j].Type
	})
}

func copyClaims(claims []Claim) []Claim {
	if claims == nil {
		return nil
	}
	out := make([]Claim, len(claims))
	copy(out, claims)
	return out
}
