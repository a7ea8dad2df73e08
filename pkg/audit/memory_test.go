package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventPromoted, "marie curie:PERSON", 3, "session-1")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventPromoted, e.Type)
	assert.Equal(t, "marie curie:PERSON", e.EdgeKey)
	assert.Equal(t, int64(3), e.Score)
	assert.Equal(t, "session-1", e.SessionID)
	assert.False(t, e.OccurredAt.IsZero())

	// IDs are unique per event.
	assert.NotEqual(t, e.ID, NewEvent(EventPromoted, "x", 0, "").ID)
}

func TestMemoryRecorderNewestFirst(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	first := NewEvent(EventPromoted, "a", 0, "s")
	second := NewEvent(EventValidated, "a", 25, "s")
	require.NoError(t, r.Record(ctx, first))
	require.NoError(t, r.Record(ctx, second))

	events, err := r.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, first.ID, events[1].ID)
}

func TestMemoryRecorderFilters(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	old := NewEvent(EventPromoted, "edge-a", 0, "s1")
	old.OccurredAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Record(ctx, old))
	require.NoError(t, r.Record(ctx, NewEvent(EventGraduated, "edge-a", 25, "s1")))
	require.NoError(t, r.Record(ctx, NewEvent(EventGraduated, "edge-b", 30, "s2")))

	byType, err := r.List(ctx, Filter{Type: EventGraduated})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byEdge, err := r.List(ctx, Filter{EdgeKey: "edge-a"})
	require.NoError(t, err)
	assert.Len(t, byEdge, 2)

	both, err := r.List(ctx, Filter{Type: EventGraduated, EdgeKey: "edge-a"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, int64(25), both[0].Score)

	since, err := r.List(ctx, Filter{Since: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := r.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
