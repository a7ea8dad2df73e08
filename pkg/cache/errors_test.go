package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, base, max))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1, base, max))
	assert.Equal(t, 400*time.Millisecond, calculateBackoff(2, base, max))
	// Capped at max.
	assert.Equal(t, time.Second, calculateBackoff(10, base, max))
}

func TestWithRetriesSucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := withRetries(context.Background(), 3, time.Millisecond, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetriesExhausted(t *testing.T) {
	calls := 0
	err := withRetries(context.Background(), 3, time.Millisecond, time.Millisecond, func() error {
		calls++
		return errors.New("down")
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 3, calls)
}

func TestPartialMergeErrorUnwraps(t *testing.T) {
	inner := errors.New("write timed out")
	err := &PartialMergeError{EntityKey: "marie curie:PERSON", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "marie curie:PERSON")
}
