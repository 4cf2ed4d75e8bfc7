package rewards

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/pkg/amount"
)

// SequencingError means the cumulative reward state can no longer be trusted.
type SequencingError struct {
	Op       string
	Expected uint64
	Got      uint64
	Msg      string
}

func (e SequencingError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s out of sequence: expected %d, got %d", e.Op, e.Expected, e.Got)
}

// ConservationViolation is raised when the claims of a round do not add up to
// its offers for some currency.
type ConservationViolation struct {
	Round    uint64
	Currency common.Address
	Offered  amount.Amount
	Claimed  amount.Amount
}

func (e ConservationViolation) Error() string {
	return fmt.Sprintf(
		"claims of round %d for currency %s sum to %s, offers sum to %s",
		e.Round, e.Currency.Hex(), e.Claimed, e.Offered,
	)
}
