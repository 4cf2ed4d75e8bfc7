package rewards

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	log "github.com/sirupsen/logrus"
)

// Penalties charges every voter that committed but failed to reveal with
// offerAmount*weight/totalWeight*penaltyFactor for each offer of the round.
func Penalties(params Params, ctx RoundContext) ([]Claim, error) {
	totalWeight, err := sumWeights(ctx.Weights)
	if err != nil {
		return nil, err
	}
	if totalWeight.IsZero() {
		return nil, nil
	}

	factor := amount.New(params.PenaltyFactor)
	claims := make([]Claim, 0)
	for _, voter := range sortedUnique(ctx.FailedReveals) {
		weight := ctx.Weights[voter]
		if weight.IsZero() {
			continue
		}
		for _, offer := range ctx.Offers {
			share, err := offer.Amount.MulDiv(weight, totalWeight)
			if err != nil {
				return nil, err
			}
			penalty, err := share.Mul(factor)
			if err != nil {
				return nil, err
			}
			claims = appendClaim(claims, ClaimTypePenalty, voter, offer.Currency, penalty, ctx.Round)
		}
	}
	return claims, nil
}

// Merge sums the claims sharing beneficiary, currency and type. The merged
// claims take the given round and come out in canonical order.
func Merge(claims []Claim, round uint64) ([]Claim, error) {
	merged := make(map[claimKey]amount.Amount)
	for _, c := range claims {
		key := claimKey{c.Beneficiary, c.Currency, c.Type}
		sum, err := merged[key].Add(c.Amount)
		if err != nil {
			return nil, err
		}
		merged[key] = sum
	}

	out := make([]Claim, 0, len(merged))
	for key, value := range merged {
		out = appendClaim(out, key.claimType, key.beneficiary, key.currency, value, round)
	}
	SortClaims(out)
	return out, nil
}

// ApplyPenalties offsets merged penalty claims against the fixed claim of the
// same beneficiary and currency first, then against the weighted one. The
// absorbed amount is moved to a fixed claim of the burn address. Whatever a
// penalty cannot absorb stays as a penalty claim of the penalized beneficiary.
func ApplyPenalties(claims []Claim, burnAddress common.Address, round uint64) ([]Claim, error) {
	merged, err := Merge(claims, round)
	if err != nil {
		return nil, err
	}

	type balance struct {
		fixed, weighted, penalty amount.Amount
	}
	type accountKey struct {
		beneficiary, currency common.Address
	}
	balances := make(map[accountKey]*balance)
	for _, c := range merged {
		key := accountKey{c.Beneficiary, c.Currency}
		b, ok := balances[key]
		if !ok {
			b = &balance{}
			balances[key] = b
		}
		switch c.Type {
		case ClaimTypeFixed:
			b.fixed = c.Amount
		case ClaimTypeWeighted:
			b.weighted = c.Amount
		case ClaimTypePenalty:
			b.penalty = c.Amount
		}
	}

	out := make([]Claim, 0, len(merged))
	for key, b := range balances {
		if !b.penalty.IsZero() {
			burnt := amount.Zero()
			for _, pool := range []*amount.Amount{&b.fixed, &b.weighted} {
				absorbed := amount.Min(b.penalty, *pool)
				*pool, _ = pool.Sub(absorbed)
				b.penalty, _ = b.penalty.Sub(absorbed)
				if burnt, err = burnt.Add(absorbed); err != nil {
					return nil, err
				}
			}
			out = appendClaim(out, ClaimTypeFixed, burnAddress, key.currency, burnt, round)

			if !b.penalty.IsZero() {
				log.WithFields(log.Fields{
					"beneficiary": key.beneficiary.Hex(),
					"currency":    key.currency.Hex(),
					"round":       round,
				}).Warnf("penalty exceeds available claims, carrying %s as penalty claim", b.penalty)
			}
		}
		out = appendClaim(out, ClaimTypeFixed, key.beneficiary, key.currency, b.fixed, round)
		out = appendClaim(out, ClaimTypeWeighted, key.beneficiary, key.currency, b.weighted, round)
		out = appendClaim(out, ClaimTypePenalty, key.beneficiary, key.currency, b.penalty, round)
	}

	// burn claims may land on a beneficiary already present in the set
	return Merge(out, round)
}

func sumWeights(weights map[common.Address]amount.Amount) (amount.Amount, error) {
	total := amount.Zero()
	for _, w := range weights {
		var err error
		if total, err = total.Add(w); err != nil {
			return amount.Zero(), err
		}
	}
	return total, nil
}
