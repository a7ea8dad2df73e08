package cache

import (
	"context"
	"sort"
	"time"

	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
	"github.com/engram-io/engram/pkg/observability"
)

// Reader serves paragraph retrieval from the volatile plane. Every read
// applies the expiration filter itself, so an expired edge is invisible the
// instant its time lapses regardless of sweep timing. When the volatile
// plane is unreachable the read falls back to the durable plane: correct,
// just slower.
type Reader struct {
	durable  graph.Store
	volatile graph.Store
	cfg      Config
	log      logging.Logger
	metrics  *observability.CacheMetrics
	tracer   *observability.Tracer
	now      func() time.Time
}

// NewReader creates a reader over the two planes.
func NewReader(durable, volatile graph.Store, cfg Config, log logging.Logger, metrics *observability.CacheMetrics) *Reader {
	return &Reader{
		durable:  durable,
		volatile: volatile,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		tracer:   observability.NewTracer(),
		now:      time.Now,
	}
}

// ParagraphHit is one ranked retrieval result: a paragraph, its owning
// document when known, and the live MENTIONS edges that matched.
type ParagraphHit struct {
	Paragraph graph.Node
	Document  *graph.Node
	Entities  []string
	Edges     []graph.Edge
}

// MatchCount is the number of queried entities mentioning the paragraph.
func (h ParagraphHit) MatchCount() int { return len(h.Entities) }

// FetchParagraphs returns the live paragraphs mentioned by the given
// entities, ranked by matching-entity count descending, then paragraph
// index ascending. limit <= 0 means unbounded.
func (r *Reader) FetchParagraphs(ctx context.Context, entityKeys []string, limit int) ([]ParagraphHit, error) {
	ctx, span := r.tracer.StartFetchSpan(ctx, "volatile")
	defer span.End()

	nowMs := graph.NowMillis(r.now())
	hits := make(map[string]*ParagraphHit)

	for _, key := range entityKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sub, err := r.collect(ctx, key)
		if err == graph.ErrNotFound {
			continue
		}
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		if sub.Truncated {
			r.metrics.FanoutTruncations.Inc()
		}

		for _, conn := range sub.Mentions {
			if conn.Node.Label != graph.LabelParagraph {
				continue
			}
			if !conn.Edge.Live(nowMs) {
				r.metrics.ExpiredEdgesFiltered.Inc()
				continue
			}

			hit, ok := hits[conn.Node.ID]
			if !ok {
				hit = &ParagraphHit{Paragraph: conn.Node}
				if doc, found := sub.Documents[graph.StringProp(conn.Node.Props, graph.PropDocID)]; found {
					d := doc
					hit.Document = &d
				}
				hits[conn.Node.ID] = hit
			}
			hit.Entities = append(hit.Entities, key)
			hit.Edges = append(hit.Edges, conn.Edge)
		}
	}

	ranked := make([]ParagraphHit, 0, len(hits))
	for _, hit := range hits {
		ranked = append(ranked, *hit)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].MatchCount() != ranked[j].MatchCount() {
			return ranked[i].MatchCount() > ranked[j].MatchCount()
		}
		ii := graph.Int64Prop(ranked[i].Paragraph.Props, graph.PropIndex)
		ij := graph.Int64Prop(ranked[j].Paragraph.Props, graph.PropIndex)
		if ii != ij {
			return ii < ij
		}
		return ranked[i].Paragraph.ID < ranked[j].Paragraph.ID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// collect reads one entity's neighbourhood from the volatile plane, falling
// back to the durable plane when the volatile store is unreachable.
func (r *Reader) collect(ctx context.Context, key string) (*graph.Subgraph, error) {
	sub, err := graph.CollectConnected(ctx, r.volatile, key, r.cfg.MaxFanout)
	if err == nil {
		r.metrics.ReadsTotal.WithLabelValues("volatile").Inc()
		return sub, nil
	}
	if err == graph.ErrNotFound {
		return nil, err
	}

	r.log.Warn("volatile read failed, falling back to durable plane",
		logging.F("entity_key", key), logging.Err(err))
	r.metrics.FallbackReadsTotal.Inc()

	sub, ferr := graph.CollectConnected(ctx, r.durable, key, r.cfg.MaxFanout)
	if ferr != nil {
		return nil, ferr
	}
	r.metrics.ReadsTotal.WithLabelValues("durable").Inc()
	return sub, nil
}
