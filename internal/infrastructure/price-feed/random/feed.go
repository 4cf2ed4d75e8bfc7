package randomfeed

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/ftso-network/ftso/pkg/codec"
)

const bipsDenominator = 10_000

type priceFeed struct {
	basePrices map[string]uint32
	jitterBips uint32
	seed       uint64
}

// NewPriceFeed quotes each base price moved by up to jitterBips in either
// direction. Quotes only depend on the seed, the round and the feed, so two
// feeds with the same seed agree.
func NewPriceFeed(basePrices map[string]uint32, jitterBips uint32, seed uint64) (ports.PriceFeed, error) {
	if len(basePrices) <= 0 {
		return nil, fmt.Errorf("missing base prices")
	}
	if jitterBips >= bipsDenominator {
		return nil, fmt.Errorf("jitter must be lower than %d bips", bipsDenominator)
	}
	cp := make(map[string]uint32, len(basePrices))
	for id, price := range basePrices {
		if _, err := codec.ParseFeed(id); err != nil {
			return nil, err
		}
		cp[id] = price
	}
	return &priceFeed{cp, jitterBips, seed}, nil
}

func (f *priceFeed) GetPrices(_ context.Context, round uint64, feeds []codec.Feed) ([]uint32, error) {
	prices := make([]uint32, 0, len(feeds))
	for i, feed := range feeds {
		base, ok := f.basePrices[feed.Id()]
		if !ok {
			return nil, fmt.Errorf("no base price for feed %s", feed)
		}
		prices = append(prices, f.quote(base, round, uint64(i)))
	}
	return prices, nil
}

func (f *priceFeed) quote(base uint32, round, index uint64) uint32 {
	if f.jitterBips == 0 || base == 0 {
		return base
	}
	rnd := rand.New(rand.NewPCG(f.seed^round, index))
	// in [-jitter, +jitter]
	move := int64(rnd.Uint32N(2*f.jitterBips+1)) - int64(f.jitterBips)
	price := int64(base) + int64(base)*move/bipsDenominator
	return uint32(max(price, 0))
}
