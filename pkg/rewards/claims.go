package rewards

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/median"
)

type Allocation struct {
	Beneficiary common.Address
	Amount      amount.Amount
}

// Apportion returns the offer scaled down to one of the given rounds. The
// amount is split equally, the remainder goes one unit per round starting
// from the first one.
func Apportion(offer Offer, rounds, index uint64) (Offer, error) {
	if rounds == 0 {
		return Offer{}, fmt.Errorf("rounds must be greater than 0")
	}
	if index >= rounds {
		return Offer{}, fmt.Errorf("round index %d out of range [0, %d)", index, rounds)
	}
	n := amount.New(rounds)
	share, _ := offer.Amount.Div(n)
	rem, _ := offer.Amount.Mod(n)
	if remaining, _ := rem.Uint64(); index < remaining {
		share, _ = share.Add(amount.New(1))
	}
	apportioned := offer
	apportioned.Amount = share
	return apportioned, nil
}

// DistributeDecliningBalance splits total proportionally to weights. Voters
// are served in ascending address order and each takes
// weight*remainingAmount/remainingWeight, so that the allocations add up to
// total exactly.
func DistributeDecliningBalance(
	total amount.Amount, weights map[common.Address]amount.Amount,
) ([]Allocation, error) {
	voters := make([]common.Address, 0, len(weights))
	for voter := range weights {
		voters = append(voters, voter)
	}
	sort.Slice(voters, func(i, j int) bool {
		return bytes.Compare(voters[i][:], voters[j][:]) < 0
	})

	remainingWeight := amount.Zero()
	for _, voter := range voters {
		var err error
		if remainingWeight, err = remainingWeight.Add(weights[voter]); err != nil {
			return nil, err
		}
	}
	if remainingWeight.IsZero() {
		return nil, fmt.Errorf("cannot distribute %s over a zero total weight", total)
	}

	remainingAmount := total
	allocations := make([]Allocation, 0, len(voters))
	for _, voter := range voters {
		weight := weights[voter]
		share, err := weight.MulDiv(remainingAmount, remainingWeight)
		if err != nil {
			return nil, err
		}
		if remainingAmount, err = remainingAmount.Sub(share); err != nil {
			return nil, err
		}
		if remainingWeight, err = remainingWeight.Sub(weight); err != nil {
			return nil, err
		}
		allocations = append(allocations, Allocation{voter, share})
	}
	return allocations, nil
}

// ClaimsForRound generates the claims of a round, penalties excluded. The
// claims of every currency sum to the offered amount of that currency.
func ClaimsForRound(params Params, ctx RoundContext) ([]Claim, error) {
	claims := make([]Claim, 0)
	for _, offer := range ctx.Offers {
		offerClaims, err := claimsForOffer(params, ctx, offer)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to compute claims for offer on feed %s: %w", offer.Feed, err,
			)
		}
		claims = append(claims, offerClaims...)
	}

	if err := checkConservation(ctx.Round, ctx.Offers, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func claimsForOffer(params Params, ctx RoundContext, offer Offer) ([]Claim, error) {
	claims := make([]Claim, 0)
	medianAmount := offer.Amount

	if ctx.PreviousFinalizer != nil {
		bips := amount.New(BipsDenominator)
		finalizationShare, err := offer.Amount.MulDiv(amount.New(params.FinalizationBips), bips)
		if err != nil {
			return nil, err
		}
		signingShare, err := offer.Amount.MulDiv(amount.New(params.SigningBips), bips)
		if err != nil {
			return nil, err
		}
		if medianAmount, err = medianAmount.Sub(finalizationShare); err != nil {
			return nil, err
		}
		if medianAmount, err = medianAmount.Sub(signingShare); err != nil {
			return nil, err
		}

		claims = appendClaim(
			claims, ClaimTypeFixed, *ctx.PreviousFinalizer, offer.Currency, finalizationShare, ctx.Round,
		)

		signers := sortedUnique(ctx.PreviousSigners)
		if len(signers) <= 0 {
			claims = appendClaim(
				claims, ClaimTypeFixed, offer.RemainderClaimer, offer.Currency, signingShare, ctx.Round,
			)
		} else {
			n := amount.New(uint64(len(signers)))
			perSigner, _ := signingShare.Div(n)
			rem, _ := signingShare.Mod(n)
			for i, signer := range signers {
				share := perSigner
				if i == 0 {
					share, _ = share.Add(rem)
				}
				claims = appendClaim(claims, ClaimTypeFixed, signer, offer.Currency, share, ctx.Round)
			}
		}
	}

	result, ok := ctx.Results[offer.Feed.Id()]
	if !ok || result == nil {
		return appendClaim(
			claims, ClaimTypeFixed, offer.RemainderClaimer, offer.Currency, medianAmount, ctx.Round,
		), nil
	}

	weights, err := rewardWeights(median.Classify(result, offer.bandParams()), offer)
	if err != nil {
		return nil, err
	}
	if len(weights) <= 0 {
		return appendClaim(
			claims, ClaimTypeFixed, offer.RemainderClaimer, offer.Currency, medianAmount, ctx.Round,
		), nil
	}

	allocations, err := DistributeDecliningBalance(medianAmount, weights)
	if err != nil {
		return nil, err
	}
	for _, a := range allocations {
		claims = appendClaim(claims, ClaimTypeWeighted, a.Beneficiary, offer.Currency, a.Amount, ctx.Round)
	}
	return claims, nil
}

// rewardWeights cross weights the IQR and elastic band shares: an eligible
// voter in the IQR band gets weight*iqrShare*pctSum and one in the elastic
// band gets weight*pctShare*iqrSum, where the sums are the eligible weights
// inside each band. When one band is empty only the other share counts.
// Voters with a zero reward weight are left out.
func rewardWeights(records []median.VoterRecord, offer Offer) (map[common.Address]amount.Amount, error) {
	iqrSum, pctSum := amount.Zero(), amount.Zero()
	for _, r := range records {
		if !r.Eligible {
			continue
		}
		var err error
		if r.InIQR {
			if iqrSum, err = iqrSum.Add(r.Weight); err != nil {
				return nil, err
			}
		}
		if r.InPct {
			if pctSum, err = pctSum.Add(r.Weight); err != nil {
				return nil, err
			}
		}
	}

	iqrFactor, pctFactor := amount.New(uint64(offer.IqrSharePPM)), amount.New(uint64(offer.PctSharePPM))
	switch {
	case iqrSum.IsZero() && pctSum.IsZero():
		return nil, nil
	case pctSum.IsZero():
		pctFactor = amount.Zero()
	case iqrSum.IsZero():
		iqrFactor = amount.Zero()
	default:
		var err error
		if iqrFactor, err = iqrFactor.Mul(pctSum); err != nil {
			return nil, err
		}
		if pctFactor, err = pctFactor.Mul(iqrSum); err != nil {
			return nil, err
		}
	}

	weights := make(map[common.Address]amount.Amount)
	for _, r := range records {
		if !r.Eligible {
			continue
		}
		factor := amount.Zero()
		if r.InIQR {
			factor = iqrFactor
		}
		if r.InPct {
			var err error
			if factor, err = factor.Add(pctFactor); err != nil {
				return nil, err
			}
		}
		weight, err := r.Weight.Mul(factor)
		if err != nil {
			return nil, err
		}
		if weight.IsZero() {
			continue
		}
		if prev, ok := weights[r.Voter]; ok {
			if weight, err = weight.Add(prev); err != nil {
				return nil, err
			}
		}
		weights[r.Voter] = weight
	}
	return weights, nil
}

func checkConservation(round uint64, offers []Offer, claims []Claim) error {
	offered := make(map[common.Address]amount.Amount)
	claimed := make(map[common.Address]amount.Amount)
	for _, o := range offers {
		sum, err := offered[o.Currency].Add(o.Amount)
		if err != nil {
			return err
		}
		offered[o.Currency] = sum
	}
	for _, c := range claims {
		sum, err := claimed[c.Currency].Add(c.Amount)
		if err != nil {
			return err
		}
		claimed[c.Currency] = sum
	}

	for currency := range claimed {
		if _, ok := offered[currency]; !ok {
			offered[currency] = amount.Zero()
		}
	}
	for currency, offeredAmount := range offered {
		if claimed[currency] != offeredAmount {
			return ConservationViolation{
				Round:    round,
				Currency: currency,
				Offered:  offeredAmount,
				Claimed:  claimed[currency],
			}
		}
	}
	return nil
}

func appendClaim(
	claims []Claim, claimType ClaimType, beneficiary, currency common.Address,
	value amount.Amount, round uint64,
) []Claim {
	if value.IsZero() {
		return claims
	}
	return append(claims, Claim{
		Type:        claimType,
		Beneficiary: beneficiary,
		Currency:    currency,
		Amount:      value,
		Round:       round,
	})
}

func sortedUnique(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
