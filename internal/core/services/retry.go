package services

import (
	"context"
	"errors"
	"time"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// withRetry runs fn up to attempts times, backing off exponentially from
// baseDelay between tries. retryable decides whether a failure is worth
// another attempt; context cancellation always stops the loop.
func withRetry(ctx context.Context, attempts int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// transientStoreError treats any storage failure as transient except
// cancellation and domain sentinels, which retrying cannot fix.
func transientStoreError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, domain.ErrInvalidInput) &&
		!errors.Is(err, domain.ErrOwnershipMismatch)
}
