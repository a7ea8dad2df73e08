package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeenSetFreshnessWindow(t *testing.T) {
	seen := NewMemorySeenSet(time.Second)
	clock := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	seen.now = func() time.Time { return clock }
	ctx := context.Background()

	fresh, err := seen.Fresh(ctx, "marie curie:PERSON")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, seen.Mark(ctx, "marie curie:PERSON"))

	fresh, err = seen.Fresh(ctx, "marie curie:PERSON")
	require.NoError(t, err)
	assert.True(t, fresh)

	// Still fresh just inside the window.
	clock = clock.Add(999 * time.Millisecond)
	fresh, err = seen.Fresh(ctx, "marie curie:PERSON")
	require.NoError(t, err)
	assert.True(t, fresh)

	// Lapsed at the boundary.
	clock = clock.Add(time.Millisecond)
	fresh, err = seen.Fresh(ctx, "marie curie:PERSON")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestMemorySeenSetForget(t *testing.T) {
	seen := NewMemorySeenSet(time.Hour)
	ctx := context.Background()

	require.NoError(t, seen.Mark(ctx, "marie curie:PERSON"))
	require.NoError(t, seen.Forget(ctx, "marie curie:PERSON"))

	fresh, err := seen.Fresh(ctx, "marie curie:PERSON")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestMemorySeenSetKeysAreIndependent(t *testing.T) {
	seen := NewMemorySeenSet(time.Hour)
	ctx := context.Background()

	require.NoError(t, seen.Mark(ctx, "a:PERSON"))

	fresh, err := seen.Fresh(ctx, "b:PERSON")
	require.NoError(t, err)
	assert.False(t, fresh)
}
