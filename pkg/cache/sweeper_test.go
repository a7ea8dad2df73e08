package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-io/engram/pkg/audit"
	"github.com/engram-io/engram/pkg/graph"
)

func TestSweepDeletesExpiredEdges(t *testing.T) {
	cfg := DefaultConfig()
	env := newTestEnv(t, cfg)
	key := seedDurable(t, env.durable)
	ctx := context.Background()

	_, err := env.service.Promoter.Promote(ctx, NewMemorySeenSet(cfg.TTL), "session-1", []string{key})
	require.NoError(t, err)

	// Within the TTL window nothing is expired.
	swept, err := env.service.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	env.advance(cfg.TTL + time.Millisecond)
	swept, err = env.service.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	for _, paraID := range []string{"pg-a", "pg-b"} {
		_, err := env.volatile.GetEdge(ctx, graph.EdgeKey{Type: graph.EdgeMentions, FromID: key, ToID: paraID})
		assert.ErrorIs(t, err, graph.ErrNotFound)
	}

	// Nodes are never deleted; the entity stays as an isolated vertex.
	_, err = env.volatile.GetNode(ctx, key)
	require.NoError(t, err)
}

func TestSweepSparesPromotedEdges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 1
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	validateEdge(t, env, cfg, edgeKey)
	ctx := context.Background()

	_, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)

	env.advance(cfg.TTL + time.Millisecond)
	swept, err := env.service.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)

	// pg-b expired unpromoted and goes; the graduated pg-a edge stays.
	assert.Equal(t, 1, swept)
	_, err = env.volatile.GetEdge(ctx, edgeKey)
	require.NoError(t, err)
}

func TestForceExpire(t *testing.T) {
	cfg := DefaultConfig()
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	ctx := context.Background()

	require.NoError(t, env.service.Sweeper.ForceExpire(ctx, edgeKey))

	// Hidden from reads immediately.
	edge, err := env.volatile.GetEdge(ctx, edgeKey)
	require.NoError(t, err)
	assert.False(t, edge.Live(graph.NowMillis(env.clock)))

	// Reclaimed by the next sweep.
	swept, err := env.service.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	events, err := env.recorder.List(ctx, audit.Filter{Type: audit.EventForceExpired})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSweeperStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	env.service.Sweeper.Start(ctx)
	// Start on a running sweeper is a no-op.
	env.service.Sweeper.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	env.service.Sweeper.Stop()
	// Stop on a stopped sweeper is a no-op.
	env.service.Sweeper.Stop()
}
