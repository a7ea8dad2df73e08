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

// validateEdge drives the edge over the threshold so it becomes a
// graduation candidate.
func validateEdge(t *testing.T, env *testEnv, cfg Config, key graph.EdgeKey) {
	t.Helper()
	ctx := context.Background()
	for i := int64(0); i < cfg.PromoteThreshold; i += cfg.HitWeight {
		_, err := env.service.Scorer.RecordHit(ctx, key)
		require.NoError(t, err)
	}
	edge, err := env.volatile.GetEdge(ctx, key)
	require.NoError(t, err)
	require.True(t, edge.Validated())
}

func TestGraduationCopiesDurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 3
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	validateEdge(t, env, cfg, edgeKey)
	ctx := context.Background()

	// Remove the seeded durable edge so the graduated copy is the only one.
	require.NoError(t, env.durable.DeleteEdge(ctx, edgeKey))

	graduated, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, graduated)

	durable, err := env.durable.GetEdge(ctx, edgeKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), durable.ExpiresAt())
	assert.True(t, durable.Promoted())
	assert.True(t, durable.Validated())
	assert.Equal(t, int64(3), durable.Confidence())
	assert.Equal(t, int64(3), graph.Int64Prop(durable.Props, graph.PropGraduatedScore))
	// Provenance survives the plane crossing.
	assert.Equal(t, "dc-1", graph.StringProp(durable.Props, graph.PropSourceDocID))
	assert.Equal(t, "session-1", durable.SessionID())

	// The volatile copy stays, flagged promoted, and expires on its own.
	volatile, err := env.volatile.GetEdge(ctx, edgeKey)
	require.NoError(t, err)
	assert.True(t, volatile.Promoted())
	assert.NotEqual(t, int64(0), volatile.ExpiresAt())

	events, err := env.recorder.List(ctx, audit.Filter{Type: audit.EventGraduated})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, edgeKey.String(), events[0].EdgeKey)
	assert.Equal(t, int64(3), events[0].Score)
	assert.Equal(t, "session-1", events[0].SessionID)
}

func TestGraduationCopiesStructuralSubgraph(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 1
	cfg.PromoteDocumentNodes = true
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	validateEdge(t, env, cfg, edgeKey)
	ctx := context.Background()

	// A fresh durable plane shows everything graduation writes.
	env.durable = graph.NewMemoryStore()
	env.service.Graduator.durable = env.durable

	_, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)

	for _, id := range []string{edgeKey.FromID, "pg-a", "dc-1"} {
		_, err := env.durable.GetNode(ctx, id)
		require.NoError(t, err, "node %s should graduate", id)
	}
	_, err = env.durable.GetEdge(ctx, graph.EdgeKey{Type: graph.EdgePartOf, FromID: "pg-a", ToID: "dc-1"})
	require.NoError(t, err)
}

func TestGraduationSkipsUnvalidatedAndExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 3
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	ctx := context.Background()

	// Unvalidated: not a candidate.
	graduated, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, graduated)

	// Validated but expired: still not a candidate.
	validateEdge(t, env, cfg, edgeKey)
	env.advance(cfg.TTL + time.Millisecond)
	graduated, err = env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, graduated)
}

func TestGraduationRerunIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 1
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	validateEdge(t, env, cfg, edgeKey)
	ctx := context.Background()

	graduated, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, graduated)

	// The promoted flag excludes the edge from the next scan.
	graduated, err = env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, graduated)
}

func TestGraduationDurability(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 1
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	validateEdge(t, env, cfg, edgeKey)
	ctx := context.Background()

	_, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)

	// Deleting the volatile copy simulates expiration or a crash; the
	// durable copy is unaffected.
	require.NoError(t, env.volatile.DeleteEdge(ctx, edgeKey))

	durable, err := env.durable.GetEdge(ctx, edgeKey)
	require.NoError(t, err)
	assert.True(t, durable.Promoted())
	assert.Equal(t, int64(0), durable.ExpiresAt())
}

func TestRollback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteThreshold = 1
	env := newTestEnv(t, cfg)
	edgeKey := promoteOne(t, env, cfg)
	validateEdge(t, env, cfg, edgeKey)
	ctx := context.Background()

	_, err := env.service.Graduator.RunOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, env.service.Graduator.Rollback(ctx, edgeKey))

	_, err = env.durable.GetEdge(ctx, edgeKey)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	// The still-live volatile copy keeps serving until its own TTL lapses.
	volatile, err := env.volatile.GetEdge(ctx, edgeKey)
	require.NoError(t, err)
	assert.True(t, volatile.Live(graph.NowMillis(env.clock)))

	events, err := env.recorder.List(ctx, audit.Filter{Type: audit.EventRolledBack})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRollbackMissingEdge(t *testing.T) {
	cfg := DefaultConfig()
	env := newTestEnv(t, cfg)

	missing := graph.EdgeKey{Type: graph.EdgeMentions, FromID: "nobody:PERSON", ToID: "pg-z"}
	err := env.service.Graduator.Rollback(context.Background(), missing)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}
