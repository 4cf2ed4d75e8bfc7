package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ftso-network/ftso/pkg/finalization"
	"github.com/ftso-network/ftso/pkg/rewards"
)

type (
	SequencingError          = rewards.SequencingError
	ConservationViolation    = rewards.ConservationViolation
	TransientSubmissionError = finalization.TransientSubmissionError
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRoundNotFound = fmt.Errorf("round %w", ErrNotFound)
)

// InsufficientDataError means no reveal of the round validated against its
// commit. The round is skipped.
type InsufficientDataError struct {
	Round uint64
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("no valid reveals for round %d", e.Round)
}

type TimeoutError struct {
	What     string
	Deadline time.Time
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s after %s", e.What, e.Deadline.Format(time.RFC3339))
}

// UnobservedFinalizationError means a round got finalized on chain without
// this node seeing the finalization event, so the reward claims built so far
// can't be trusted.
type UnobservedFinalizationError struct {
	Round uint64
}

func (e UnobservedFinalizationError) Error() string {
	return fmt.Sprintf("round %d finalized on chain but finalization event never observed", e.Round)
}

// IsFatal tells whether the node must stop after the error.
func IsFatal(err error) bool {
	var seqErr SequencingError
	var consErr ConservationViolation
	var finErr UnobservedFinalizationError
	return errors.As(err, &seqErr) || errors.As(err, &consErr) || errors.As(err, &finErr)
}
