package domain

import "context"

type EventType int

const (
	EventTypeUndefined EventType = iota

	// Round
	EventTypeRoundStarted
	EventTypePricesCommitted
	EventTypePricesRevealed
	EventTypeRoundAggregated
	EventTypeRootSigned
	EventTypeRoundFinalized
	EventTypeRoundFailed
)

type RoundEventRepository interface {
	Save(ctx context.Context, id string, events ...RoundEvent) (*Round, error)
	Load(ctx context.Context, id string) (*Round, error)
	RegisterEventsHandler(func(*Round))
	Close()
}
