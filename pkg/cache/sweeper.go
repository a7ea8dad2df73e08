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

// Sweeper reclaims expired volatile MENTIONS edges. It is stateless and
// idempotent; correctness never depends on its cadence because every read
// applies the expiration filter itself. Nodes are never deleted, so an
// expired edge leaves its endpoints behind as isolated vertices.
type Sweeper struct {
	volatile graph.Store
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

// NewSweeper creates a sweeper over the volatile plane.
func NewSweeper(volatile graph.Store, cfg Config, log logging.Logger, metrics *observability.CacheMetrics, recorder audit.Recorder) *Sweeper {
	return &Sweeper{
		volatile: volatile,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		tracer:   observability.NewTracer(),
		recorder: recorder,
		now:      time.Now,
	}
}

// Start launches the periodic sweep. Calling Start on a running sweeper is
// a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil {
					s.log.Error("sweep failed", logging.Err(err))
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}(s.stopCh, s.doneCh)
}

// Stop halts the periodic sweep and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// SweepOnce deletes every volatile MENTIONS edge whose expiration has
// lapsed and whose promoted flag is clear. Promoted edges are excluded so a
// graduation-in-flight is never evicted mid-transfer; their durable copy is
// the authoritative one and the volatile copy expires from view on read.
// Returns the number of edges deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.StartPassSpan(ctx, observability.SpanSweep)
	defer span.End()
	start := s.now()
	nowMs := graph.NowMillis(start)

	var expired []graph.EdgeKey
	live := 0
	err := s.volatile.ScanEdges(ctx, graph.EdgeMentions, func(e graph.Edge) error {
		if e.Expired(nowMs) && !e.Promoted() {
			expired = append(expired, e.Key)
			return nil
		}
		if e.Live(nowMs) {
			live++
		}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("scanning for expired edges: %w", err)
	}

	swept := 0
	for _, key := range expired {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if err := s.volatile.DeleteEdge(ctx, key); err != nil {
			s.log.Error("deleting expired edge", logging.F("edge_key", key.String()), logging.Err(err))
			continue
		}
		swept++
	}

	s.metrics.SweptEdgesTotal.Add(float64(swept))
	s.metrics.LiveEdges.WithLabelValues("volatile").Set(float64(live))
	s.metrics.SweepSeconds.Observe(s.now().Sub(start).Seconds())
	if swept > 0 {
		s.log.Info("sweep complete", logging.F("swept", swept), logging.F("live", live))
	}
	return swept, nil
}

// ForceExpire is the administrative override that rewinds an edge's
// expiration into the past, so reads hide it immediately and the next sweep
// reclaims it.
func (s *Sweeper) ForceExpire(ctx context.Context, key graph.EdgeKey) error {
	nowMs := graph.NowMillis(s.now())
	err := s.volatile.UpdateEdgeProps(ctx, key, map[string]any{graph.PropExpiresAt: nowMs - 1})
	if err != nil {
		return fmt.Errorf("force-expiring edge %s: %w", key, err)
	}

	event := audit.NewEvent(audit.EventForceExpired, key.String(), 0, "")
	if err := s.recorder.Record(ctx, event); err != nil {
		s.log.Warn("recording force-expire event", logging.F("edge_key", key.String()), logging.Err(err))
	}
	s.log.Info("edge force-expired", logging.F("edge_key", key.String()))
	return nil
}
