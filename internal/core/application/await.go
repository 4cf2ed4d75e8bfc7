package application

import (
	"context"
	"time"

	"github.com/ftso-network/ftso/internal/core/domain"
)

// awaitCondition polls cond until it holds. Once deadline plus grace has
// passed without the condition holding, it returns a domain.TimeoutError.
// The context only guards shutdown.
func awaitCondition(
	ctx context.Context, what string, deadline time.Time, grace, interval time.Duration,
	cond func() bool,
) error {
	expiry := deadline.Add(grace)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if cond() {
			return nil
		}
		if !time.Now().Before(expiry) {
			return domain.TimeoutError{What: what, Deadline: expiry}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
