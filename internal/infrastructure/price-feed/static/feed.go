package staticfeed

import (
	"context"
	"fmt"

	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/ftso-network/ftso/pkg/codec"
)

type priceFeed struct {
	prices map[string]uint32
}

// NewPriceFeed returns a feed that always quotes the given prices, keyed by
// feed id (ie. BTC-USD).
func NewPriceFeed(prices map[string]uint32) (ports.PriceFeed, error) {
	if len(prices) <= 0 {
		return nil, fmt.Errorf("missing prices")
	}
	cp := make(map[string]uint32, len(prices))
	for id, price := range prices {
		if _, err := codec.ParseFeed(id); err != nil {
			return nil, err
		}
		cp[id] = price
	}
	return &priceFeed{cp}, nil
}

func (f *priceFeed) GetPrices(_ context.Context, _ uint64, feeds []codec.Feed) ([]uint32, error) {
	prices := make([]uint32, 0, len(feeds))
	for _, feed := range feeds {
		price, ok := f.prices[feed.Id()]
		if !ok {
			return nil, fmt.Errorf("no price for feed %s", feed)
		}
		prices = append(prices, price)
	}
	return prices, nil
}
