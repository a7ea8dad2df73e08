// Package cache implements the two-tier cache protocol over the graph
// stores: promotion of durable subgraphs into a time-bounded volatile
// working set, reinforcement scoring on the promoted edges, graduation of
// validated edges back into the durable plane, and time-based eviction.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreUnavailable reports that a plane stayed unreachable after the
	// retry budget was spent. Reads recover by falling back to the durable
	// plane; writes surface the error to the caller.
	ErrStoreUnavailable = errors.New("cache: store unavailable")

	// ErrCounterRace reports that an atomic score increment could not be
	// applied within the bounded retry budget. The event is recorded as
	// dropped in the audit trail, never silently lost.
	ErrCounterRace = errors.New("cache: counter increment retries exhausted")
)

// PartialMergeError reports a failure partway through a cross-plane copy.
// Every edge write carries all required fields atomically, so the partial
// state is a valid subset; recovery is retrying the whole operation, never
// patching individual edges.
type PartialMergeError struct {
	EntityKey string
	Err       error
}

func (e *PartialMergeError) Error() string {
	return fmt.Sprintf("cache: partial merge for %s: %v", e.EntityKey, e.Err)
}

func (e *PartialMergeError) Unwrap() error {
	return e.Err
}

// calculateBackoff calculates exponential backoff for retries.
func calculateBackoff(attempt int, base, max time.Duration) time.Duration {
	backoff := base * (1 << uint(attempt))
	if backoff > max {
		backoff = max
	}
	return backoff
}

// withRetries runs fn up to attempts times, sleeping with exponential
// backoff between failures. Returns ErrStoreUnavailable wrapping the last
// error once the budget is spent.
func withRetries(ctx context.Context, attempts int, base, max time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(calculateBackoff(attempt, base, max)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}
