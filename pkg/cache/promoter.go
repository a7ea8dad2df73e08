package cache

import (
	"context"
	"time"

	"github.com/engram-io/engram/pkg/audit"
	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
	"github.com/engram-io/engram/pkg/observability"
)

// Promoter copies bounded entity neighbourhoods from the durable plane into
// the volatile plane, stamping each MENTIONS edge with a fresh expiration.
// All writes are idempotent merges, so concurrent promotion of the same
// entity from multiple sessions collapses to one edge with the later
// expiration, and a failed promotion is safe to retry wholesale.
type Promoter struct {
	durable  graph.Store
	volatile graph.Store
	cfg      Config
	log      logging.Logger
	metrics  *observability.CacheMetrics
	tracer   *observability.Tracer
	recorder audit.Recorder
	now      func() time.Time
}

// NewPromoter creates a promoter over the two planes.
func NewPromoter(durable, volatile graph.Store, cfg Config, log logging.Logger, metrics *observability.CacheMetrics, recorder audit.Recorder) *Promoter {
	return &Promoter{
		durable:  durable,
		volatile: volatile,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		tracer:   observability.NewTracer(),
		recorder: recorder,
		now:      time.Now,
	}
}

// PromotionResult summarizes one Promote call.
type PromotionResult struct {
	Promoted     []string
	SkippedFresh []string
	Missing      []string
	Truncated    []string
	EdgesWritten int
}

// Promote runs the promotion contract for the given entity keys: keys still
// fresh in the seen-set are dropped, the rest have their durable
// neighbourhood merged into the volatile plane with expiresAt = now+TTL and
// provenance carried verbatim. Fanout truncation is reported in the result,
// not an error.
func (p *Promoter) Promote(ctx context.Context, seen SeenSet, sessionID string, keys []string) (*PromotionResult, error) {
	result := &PromotionResult{}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fresh, err := seen.Fresh(ctx, key)
		if err != nil {
			return result, err
		}
		if fresh {
			result.SkippedFresh = append(result.SkippedFresh, key)
			p.metrics.PromotionsSkipped.WithLabelValues("fresh").Inc()
			continue
		}

		written, truncated, err := p.promoteOne(ctx, sessionID, key)
		if err == graph.ErrNotFound {
			result.Missing = append(result.Missing, key)
			p.metrics.PromotionsSkipped.WithLabelValues("missing").Inc()
			continue
		}
		if err != nil {
			p.metrics.PromotionsTotal.WithLabelValues("error").Inc()
			return result, err
		}

		if err := seen.Mark(ctx, key); err != nil {
			return result, err
		}

		result.Promoted = append(result.Promoted, key)
		result.EdgesWritten += written
		if truncated {
			result.Truncated = append(result.Truncated, key)
			p.metrics.FanoutTruncations.Inc()
		}
		p.metrics.PromotionsTotal.WithLabelValues("ok").Inc()

		event := audit.NewEvent(audit.EventPromoted, key, int64(written), sessionID)
		if err := p.recorder.Record(ctx, event); err != nil {
			p.log.Warn("recording promotion event", logging.F("entity_key", key), logging.Err(err))
		}
	}

	return result, nil
}

// promoteOne merges one entity's neighbourhood into the volatile plane and
// returns the number of MENTIONS edges written.
func (p *Promoter) promoteOne(ctx context.Context, sessionID, key string) (int, bool, error) {
	ctx, span := p.tracer.StartPromoteSpan(ctx, key, sessionID)
	defer span.End()
	start := p.now()

	var sub *graph.Subgraph
	err := withRetries(ctx, p.cfg.RetryAttempts, p.cfg.RetryBase, p.cfg.RetryMax, func() error {
		var err error
		sub, err = graph.CollectConnected(ctx, p.durable, key, p.cfg.MaxFanout)
		if err == graph.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		observability.RecordError(span, err)
		return 0, false, err
	}
	if sub == nil {
		return 0, false, graph.ErrNotFound
	}

	written, err := p.mergeVolatile(ctx, sessionID, sub)
	if err != nil {
		observability.RecordError(span, err)
		p.metrics.PromotionSeconds.WithLabelValues("error").Observe(p.now().Sub(start).Seconds())
		return written, sub.Truncated, &PartialMergeError{EntityKey: key, Err: err}
	}

	p.metrics.PromotionSeconds.WithLabelValues("ok").Observe(p.now().Sub(start).Seconds())
	p.log.Debug("entity promoted",
		logging.F("entity_key", key),
		logging.F("edges", written),
		logging.F("truncated", sub.Truncated))
	return written, sub.Truncated, nil
}

func (p *Promoter) mergeVolatile(ctx context.Context, sessionID string, sub *graph.Subgraph) (int, error) {
	if err := p.volatile.UpsertNode(ctx, sub.Entity); err != nil {
		return 0, err
	}

	expiresAt := graph.NowMillis(p.now().Add(p.cfg.TTL))
	written := 0

	for _, conn := range sub.Mentions {
		if conn.Node.Label == graph.LabelDocument && !p.cfg.PromoteDocumentNodes {
			continue
		}
		if err := p.volatile.UpsertNode(ctx, conn.Node); err != nil {
			return written, err
		}
		if err := p.volatile.UpsertEdge(ctx, ephemeralCopy(conn.Edge, expiresAt, p.cfg.InitialScore, sessionID)); err != nil {
			return written, err
		}
		written++
	}

	if p.cfg.PromoteDocumentNodes {
		for _, doc := range sub.Documents {
			if err := p.volatile.UpsertNode(ctx, doc); err != nil {
				return written, err
			}
		}
		// PART_OF edges are structural and copied without expiration.
		for _, part := range sub.PartOf {
			if err := p.volatile.UpsertEdge(ctx, part.Clone()); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// ephemeralCopy builds the volatile rendition of a durable MENTIONS edge:
// provenance verbatim, fresh expiration, reset cache state, and the
// promoting session stamped for the graduation audit trail.
func ephemeralCopy(e graph.Edge, expiresAt, initialScore int64, sessionID string) graph.Edge {
	out := graph.Edge{Key: e.Key, Props: make(map[string]any, len(e.Props))}
	for _, k := range graph.ProvenanceProps {
		if v, ok := e.Props[k]; ok {
			out.Props[k] = v
		}
	}
	out.Props[graph.PropExpiresAt] = expiresAt
	out.Props[graph.PropConfidence] = initialScore
	out.Props[graph.PropValidated] = false
	out.Props[graph.PropPromoted] = false
	out.Props[graph.PropSessionID] = sessionID
	return out
}
