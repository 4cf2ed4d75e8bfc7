// Package median computes the weighted median and quartiles of a feed's
// revealed prices, and the bands used to decide who earns median rewards.
package median

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
	"github.com/ftso-network/ftso/pkg/codec"
)

const PPM = 1_000_000

var (
	ErrNoVotes         = errors.New("no votes to aggregate")
	ErrZeroTotalWeight = errors.New("total weight of votes is zero")
)

// Result holds the votes sorted by ascending price.
type Result struct {
	Round            uint64
	Feed             codec.Feed
	Voters           []common.Address
	Prices           []uint32
	Weights          []amount.Amount
	FinalMedianPrice uint32
	Quartile1Price   uint32
	Quartile3Price   uint32
}

type vote struct {
	voter  common.Address
	price  uint32
	weight amount.Amount
}

func Calculate(
	round uint64, feed codec.Feed,
	voters []common.Address, prices []uint32, weights []amount.Amount,
) (*Result, error) {
	if len(voters) != len(prices) || len(voters) != len(weights) {
		return nil, fmt.Errorf(
			"mismatching input lengths: %d voters, %d prices, %d weights",
			len(voters), len(prices), len(weights),
		)
	}
	if len(voters) <= 0 {
		return nil, ErrNoVotes
	}

	votes := make([]vote, 0, len(voters))
	for i := range voters {
		votes = append(votes, vote{voters[i], prices[i], weights[i]})
	}
	// ties on price are ordered by address so that every node sorts alike
	sort.SliceStable(votes, func(i, j int) bool {
		if votes[i].price == votes[j].price {
			return votes[i].voter.Cmp(votes[j].voter) < 0
		}
		return votes[i].price < votes[j].price
	})

	totalWeight := amount.Zero()
	for _, v := range votes {
		var err error
		if totalWeight, err = totalWeight.Add(v.weight); err != nil {
			return nil, err
		}
	}
	if totalWeight.IsZero() {
		return nil, ErrZeroTotalWeight
	}

	two, four := amount.New(2), amount.New(4)
	half, _ := totalWeight.Div(two)
	rem, _ := totalWeight.Mod(two)
	medianWeight, err := half.Add(rem)
	if err != nil {
		return nil, err
	}
	evenTotal := rem.IsZero()

	var medianPrice uint32
	running := amount.Zero()
	for i, v := range votes {
		if running, err = running.Add(v.weight); err != nil {
			return nil, err
		}
		if running.Lt(medianWeight) {
			continue
		}
		medianPrice = v.price
		if running.Cmp(medianWeight) == 0 && evenTotal && i+1 < len(votes) {
			medianPrice = uint32((uint64(v.price) + uint64(votes[i+1].price)) / 2)
		}
		break
	}

	quartileWeight, _ := totalWeight.Div(four)
	q1 := votes[len(votes)-1].price
	running = amount.Zero()
	for _, v := range votes {
		running, _ = running.Add(v.weight)
		if running.Gt(quartileWeight) {
			q1 = v.price
			break
		}
	}
	q3 := votes[0].price
	running = amount.Zero()
	for i := len(votes) - 1; i >= 0; i-- {
		running, _ = running.Add(votes[i].weight)
		if running.Gt(quartileWeight) {
			q3 = votes[i].price
			break
		}
	}

	result := &Result{
		Round:            round,
		Feed:             feed,
		Voters:           make([]common.Address, 0, len(votes)),
		Prices:           make([]uint32, 0, len(votes)),
		Weights:          make([]amount.Amount, 0, len(votes)),
		FinalMedianPrice: medianPrice,
		Quartile1Price:   q1,
		Quartile3Price:   q3,
	}
	for _, v := range votes {
		result.Voters = append(result.Voters, v.voter)
		result.Prices = append(result.Prices, v.price)
		result.Weights = append(result.Weights, v.weight)
	}
	return result, nil
}

// Band returns price ∓ price*widthPPM/1e6, floored at zero.
func Band(price uint32, widthPPM uint32) (low, high uint64) {
	delta := uint64(price) * uint64(widthPPM) / PPM
	high = uint64(price) + delta
	if delta > uint64(price) {
		return 0, high
	}
	return uint64(price) - delta, high
}
