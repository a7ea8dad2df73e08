package cache

import (
	"context"
	"fmt"

	"github.com/engram-io/engram/pkg/audit"
	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
	"github.com/engram-io/engram/pkg/observability"
)

// Scorer accumulates the reinforcement signal on volatile MENTIONS edges.
// Increments go through the store's atomic counter so concurrent hits on
// the same edge are all reflected; the validated flag flips exactly once
// when the threshold is crossed and is only ever consumed by graduation.
type Scorer struct {
	volatile graph.Store
	cfg      Config
	log      logging.Logger
	metrics  *observability.CacheMetrics
	recorder audit.Recorder
}

// NewScorer creates a scorer over the volatile plane.
func NewScorer(volatile graph.Store, cfg Config, log logging.Logger, metrics *observability.CacheMetrics, recorder audit.Recorder) *Scorer {
	return &Scorer{
		volatile: volatile,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		recorder: recorder,
	}
}

// RecordHit applies a cache-hit reinforcement event to the edge and returns
// the new score.
func (s *Scorer) RecordHit(ctx context.Context, key graph.EdgeKey) (int64, error) {
	return s.record(ctx, key, s.cfg.HitWeight, "hit")
}

// RecordValidation applies an explicit external confirmation to the edge
// and returns the new score.
func (s *Scorer) RecordValidation(ctx context.Context, key graph.EdgeKey) (int64, error) {
	return s.record(ctx, key, s.cfg.ValidationWeight, "validation")
}

func (s *Scorer) record(ctx context.Context, key graph.EdgeKey, weight int64, kind string) (int64, error) {
	var (
		score    int64
		notFound bool
	)
	// Transient store failures get the backoff budget before the event is
	// declared dropped. A missing edge is permanent and short-circuits.
	err := withRetries(ctx, s.cfg.RetryAttempts, s.cfg.RetryBase, s.cfg.RetryMax, func() error {
		next, ierr := s.volatile.IncrementEdgeCounter(ctx, key, graph.PropConfidence, weight)
		if ierr == graph.ErrNotFound {
			notFound = true
			return nil
		}
		if ierr != nil {
			return ierr
		}
		score = next
		return nil
	})
	if notFound {
		return 0, graph.ErrNotFound
	}
	if err != nil {
		// The increment could not be applied within the retry budget.
		// Record the dropped event so the signal is never silently lost.
		s.metrics.ScoreEventsDropped.Inc()
		event := audit.NewEvent(audit.EventScoreDropped, key.String(), weight, "")
		event.Detail = err.Error()
		if rerr := s.recorder.Record(ctx, event); rerr != nil {
			s.log.Error("recording dropped score event", logging.F("edge_key", key.String()), logging.Err(rerr))
		}
		return 0, fmt.Errorf("%w: %v", ErrCounterRace, err)
	}

	s.metrics.ScoreEventsTotal.WithLabelValues(kind).Inc()

	if score >= s.cfg.PromoteThreshold {
		if err := s.markValidated(ctx, key, score); err != nil {
			return score, err
		}
	}
	return score, nil
}

// markValidated flips the validated flag once. Re-marking an already
// validated edge is a no-op.
func (s *Scorer) markValidated(ctx context.Context, key graph.EdgeKey, score int64) error {
	edge, err := s.volatile.GetEdge(ctx, key)
	if err != nil {
		return err
	}
	if edge.Validated() {
		return nil
	}

	err = s.volatile.UpdateEdgeProps(ctx, key, map[string]any{graph.PropValidated: true})
	if err != nil {
		return fmt.Errorf("marking edge %s validated: %w", key, err)
	}

	s.metrics.ValidationsTotal.Inc()
	s.log.Info("edge crossed validation threshold",
		logging.F("edge_key", key.String()),
		logging.F("score", score))

	event := audit.NewEvent(audit.EventValidated, key.String(), score, edge.SessionID())
	if err := s.recorder.Record(ctx, event); err != nil {
		s.log.Warn("recording validation event", logging.F("edge_key", key.String()), logging.Err(err))
	}
	return nil
}

// ResetScore is the administrative override that sets an edge's confidence
// back to zero. The validated flag is monotonic and stays set.
func (s *Scorer) ResetScore(ctx context.Context, key graph.EdgeKey) error {
	err := s.volatile.UpdateEdgeProps(ctx, key, map[string]any{graph.PropConfidence: int64(0)})
	if err != nil {
		return fmt.Errorf("resetting score on edge %s: %w", key, err)
	}
	s.log.Info("score reset", logging.F("edge_key", key.String()))
	return nil
}
