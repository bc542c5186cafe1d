package core

import (
	"context"
	"fmt"
	"time"

	"genzweekly/internal/logger"
)

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn up to attempts times, sleeping delay*2^n between failures.
// It gives up early when ctx is done.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		wait := delay * time.Duration(1<<attempt)
		logger.Debug("Retrying after failure", "attempt", attempt+1, "wait", wait, "error", err)
		if sleepErr := Sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("%w (last error: %v)", sleepErr, err)
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
