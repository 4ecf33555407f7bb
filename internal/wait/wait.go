// Package wait provides a bounded polling primitive for callers that need
// to block until some condition holds.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTimeout bounds For when no timeout is given.
	DefaultTimeout = 5 * time.Second

	// Step is the polling interval.
	Step = 50 * time.Millisecond
)

// ErrTimeout is returned when the predicate never held within the bound.
var ErrTimeout = errors.New("wait: timed out")

// For polls predicate every Step until it returns true and reports how
// long that took. It fails with ErrTimeout once timeout has elapsed, or
// with the context error if ctx ends first. A non-positive timeout means
// DefaultTimeout.
func For(ctx context.Context, predicate func() bool, timeout time.Duration) (time.Duration, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	if predicate() {
		return 0, nil
	}

	ticker := time.NewTicker(Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-ticker.C:
			if predicate() {
				return time.Since(start), nil
			}
			if elapsed := time.Since(start); elapsed >= timeout {
				return elapsed, fmt.Errorf("%w after %v", ErrTimeout, timeout)
			}
		}
	}
}
