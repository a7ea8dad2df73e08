package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/engram-io/engram/pkg/audit"
	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
	"github.com/engram-io/engram/pkg/observability"
)

// Graduator copies validated volatile subgraphs into the durable plane,
// clearing their expiration and marking permanence. It runs as a background
// scan independent of the read path; the volatile edge's promoted flag only
// flips after the durable write completes, which is the visibility barrier
// the sweeper relies on.
type Graduator struct {
	volatile graph.Store
	durable  graph.Store
	cfg      Config
	log      logging.Logger
	metrics  *observability.CacheMetrics
	tracer   *observability.Tracer
	recorder audit.Recorder
	now      func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewGraduator creates a graduator over the two planes.
func NewGraduator(volatile, durable graph.Store, cfg Config, log logging.Logger, metrics *observability.CacheMetrics, recorder audit.Recorder) *Graduator {
	return &Graduator{
		volatile: volatile,
		durable:  durable,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		tracer:   observability.NewTracer(),
		recorder: recorder,
		now:      time.Now,
	}
}

// Start launches the periodic graduation scan. Calling Start on a running
// graduator is a no-op.
func (g *Graduator) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopCh != nil {
		return
	}
	g.stopCh = make(chan struct{})
	g.doneCh = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(g.cfg.GraduationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := g.RunOnce(ctx); err != nil {
					g.log.Error("graduation pass failed", logging.Err(err))
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}(g.stopCh, g.doneCh)
}

// Stop halts the periodic scan and waits for an in-flight pass to finish.
func (g *Graduator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopCh == nil {
		return
	}
	close(g.stopCh)
	<-g.doneCh
	g.stopCh = nil
	g.doneCh = nil
}

// RunOnce scans the volatile plane and graduates every edge that is
// validated, not yet promoted, and still live. Returns the number of edges
// graduated. Re-running against already graduated state is a no-op merge.
func (g *Graduator) RunOnce(ctx context.Context) (int, error) {
	ctx, span := g.tracer.StartPassSpan(ctx, observability.SpanGraduate)
	defer span.End()
	start := g.now()

	nowMs := graph.NowMillis(start)
	var candidates []graph.Edge
	err := g.volatile.ScanEdges(ctx, graph.EdgeMentions, func(e graph.Edge) error {
		if e.Validated() && !e.Promoted() && e.Live(nowMs) {
			candidates = append(candidates, e)
		}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("scanning graduation candidates: %w", err)
	}

	graduated := 0
	for _, edge := range candidates {
		if err := ctx.Err(); err != nil {
			return graduated, err
		}
		if err := g.graduateEdge(ctx, edge); err != nil {
			g.metrics.GraduationsTotal.WithLabelValues("error").Inc()
			g.log.Error("graduating edge failed", logging.F("edge_key", edge.Key.String()), logging.Err(err))
			continue
		}
		graduated++
		g.metrics.GraduationsTotal.WithLabelValues("ok").Inc()
	}

	g.metrics.GraduationSeconds.Observe(g.now().Sub(start).Seconds())
	if graduated > 0 {
		g.log.Info("graduation pass complete",
			logging.F("graduated", graduated),
			logging.F("candidates", len(candidates)))
	}
	return graduated, nil
}

// graduateEdge copies one edge's minimal subgraph into the durable plane,
// then flips the volatile edge's promoted flag.
func (g *Graduator) graduateEdge(ctx context.Context, edge graph.Edge) error {
	entity, err := g.volatile.GetNode(ctx, edge.Key.FromID)
	if err != nil {
		return fmt.Errorf("loading entity %s: %w", edge.Key.FromID, err)
	}
	target, err := g.volatile.GetNode(ctx, edge.Key.ToID)
	if err != nil {
		return fmt.Errorf("loading endpoint %s: %w", edge.Key.ToID, err)
	}

	if err := g.durable.UpsertNode(ctx, *entity); err != nil {
		return &PartialMergeError{EntityKey: edge.Key.FromID, Err: err}
	}
	if err := g.durable.UpsertNode(ctx, *target); err != nil {
		return &PartialMergeError{EntityKey: edge.Key.FromID, Err: err}
	}

	finalScore := edge.Confidence()
	if err := g.durable.UpsertEdge(ctx, durableCopy(edge, finalScore)); err != nil {
		return &PartialMergeError{EntityKey: edge.Key.FromID, Err: err}
	}

	// The paragraph's structural link follows it into the durable plane.
	if target.Label == graph.LabelParagraph {
		if err := g.copyPartOf(ctx, *target); err != nil {
			return err
		}
	}

	event := audit.NewEvent(audit.EventGraduated, edge.Key.String(), finalScore, edge.SessionID())
	if err := g.recorder.Record(ctx, event); err != nil {
		g.log.Warn("recording graduation event", logging.F("edge_key", edge.Key.String()), logging.Err(err))
	}

	// Durable copy is in place; flipping promoted here excludes the volatile
	// edge from eviction and leaves it to expire naturally.
	err = g.volatile.UpdateEdgeProps(ctx, edge.Key, map[string]any{graph.PropPromoted: true})
	if err != nil && err != graph.ErrNotFound {
		return fmt.Errorf("marking volatile edge %s promoted: %w", edge.Key, err)
	}

	g.log.Debug("edge graduated",
		logging.F("edge_key", edge.Key.String()),
		logging.F("final_score", finalScore),
		logging.F("source_session", edge.SessionID()))
	return nil
}

func (g *Graduator) copyPartOf(ctx context.Context, paragraph graph.Node) error {
	docID := graph.StringProp(paragraph.Props, graph.PropDocID)
	if docID == "" {
		return nil
	}
	doc, err := g.volatile.GetNode(ctx, docID)
	if err == graph.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := g.durable.UpsertNode(ctx, *doc); err != nil {
		return &PartialMergeError{EntityKey: paragraph.ID, Err: err}
	}

	partKey := graph.EdgeKey{Type: graph.EdgePartOf, FromID: paragraph.ID, ToID: docID}
	part, err := g.volatile.GetEdge(ctx, partKey)
	if err == graph.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := g.durable.UpsertEdge(ctx, *part); err != nil {
		return &PartialMergeError{EntityKey: paragraph.ID, Err: err}
	}
	return nil
}

// Rollback reverses a graduation: the durable edge's promoted flag is
// cleared and the edge deleted as a tombstone. A still-live volatile copy
// is untouched and continues its own TTL lifecycle.
func (g *Graduator) Rollback(ctx context.Context, key graph.EdgeKey) error {
	err := g.durable.UpdateEdgeProps(ctx, key, map[string]any{graph.PropPromoted: false})
	if err == graph.ErrNotFound {
		return err
	}
	if err != nil {
		return fmt.Errorf("clearing promoted on edge %s: %w", key, err)
	}
	if err := g.durable.DeleteEdge(ctx, key); err != nil {
		return fmt.Errorf("tombstoning edge %s: %w", key, err)
	}

	g.metrics.RollbacksTotal.Inc()
	event := audit.NewEvent(audit.EventRolledBack, key.String(), 0, "")
	if err := g.recorder.Record(ctx, event); err != nil {
		g.log.Warn("recording rollback event", logging.F("edge_key", key.String()), logging.Err(err))
	}
	g.log.Info("graduation rolled back", logging.F("edge_key", key.String()))
	return nil
}

// durableCopy builds the durable rendition of a graduating edge:
// provenance verbatim, expiration cleared, permanence marked, and the final
// confidence snapshotted for audit.
func durableCopy(e graph.Edge, finalScore int64) graph.Edge {
	out := graph.Edge{Key: e.Key, Props: make(map[string]any, len(e.Props))}
	for _, k := range graph.ProvenanceProps {
		if v, ok := e.Props[k]; ok {
			out.Props[k] = v
		}
	}
	out.Props[graph.PropExpiresAt] = int64(0)
	out.Props[graph.PropConfidence] = finalScore
	out.Props[graph.PropGraduatedScore] = finalScore
	out.Props[graph.PropValidated] = true
	out.Props[graph.PropPromoted] = true
	return out
}
