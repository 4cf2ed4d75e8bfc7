package ports

import (
	"context"

	"github.com/ftso-network/ftso/pkg/codec"
)

type PriceFeed interface {
	// GetPrices returns one price per feed, in the same order.
	GetPrices(ctx context.Context, round uint64, feeds []codec.Feed) ([]uint32, error)
}
