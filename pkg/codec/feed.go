package codec

import (
	"bytes"
	"fmt"
	"strings"
)

const symbolLen = 4

type Symbol [symbolLen]byte

func NewSymbol(s string) (Symbol, error) {
	var sym Symbol
	if len(s) == 0 || len(s) > symbolLen {
		return sym, fmt.Errorf("invalid symbol %q, must be 1 to %d chars", s, symbolLen)
	}
	copy(sym[:], s)
	return sym, nil
}

func (s Symbol) String() string {
	return string(bytes.TrimRight(s[:], "\x00"))
}

type Feed struct {
	OfferSymbol Symbol
	QuoteSymbol Symbol
}

func ParseFeed(id string) (Feed, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 2 {
		return Feed{}, fmt.Errorf("invalid feed %q, expected OFFER-QUOTE", id)
	}
	offer, err := NewSymbol(parts[0])
	if err != nil {
		return Feed{}, err
	}
	quote, err := NewSymbol(parts[1])
	if err != nil {
		return Feed{}, err
	}
	return Feed{offer, quote}, nil
}

func ParseFeeds(ids []string) ([]Feed, error) {
	feeds := make([]Feed, 0, len(ids))
	seen := make(map[string]struct{})
	for _, id := range ids {
		feed, err := ParseFeed(strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[feed.Id()]; ok {
			return nil, fmt.Errorf("duplicated feed %s", feed.Id())
		}
		seen[feed.Id()] = struct{}{}
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

// Id is the map key of a feed.
func (f Feed) Id() string {
	return f.OfferSymbol.String() + "-" + f.QuoteSymbol.String()
}

func (f Feed) String() string {
	return f.Id()
}
