package cache

import (
	"context"

	"github.com/engram-io/engram/pkg/audit"
	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
	"github.com/engram-io/engram/pkg/observability"
)

// Service wires the protocol components into the query control flow: dedup,
// promote, fetch, score. It also owns the background sweeper and graduator
// lifecycles.
type Service struct {
	Promoter  *Promoter
	Scorer    *Scorer
	Graduator *Graduator
	Sweeper   *Sweeper
	Reader    *Reader

	cfg Config
	log logging.Logger
}

// NewService builds a service over the two planes with a shared config,
// logger, metrics set, and audit recorder.
func NewService(durable, volatile graph.Store, cfg Config, log logging.Logger, metrics *observability.CacheMetrics, recorder audit.Recorder) *Service {
	return &Service{
		Promoter:  NewPromoter(durable, volatile, cfg, log, metrics, recorder),
		Scorer:    NewScorer(volatile, cfg, log, metrics, recorder),
		Graduator: NewGraduator(volatile, durable, cfg, log, metrics, recorder),
		Sweeper:   NewSweeper(volatile, cfg, log, metrics, recorder),
		Reader:    NewReader(durable, volatile, cfg, log, metrics),
		cfg:       cfg,
		log:       log,
	}
}

// Start launches the background sweeper and graduation scanner.
func (s *Service) Start(ctx context.Context) {
	s.Sweeper.Start(ctx)
	s.Graduator.Start(ctx)
	s.log.Info("cache service started",
		logging.F("sweep_interval", s.cfg.SweepInterval),
		logging.F("graduation_interval", s.cfg.GraduationInterval))
}

// Stop halts the background tasks, waiting for in-flight passes.
func (s *Service) Stop() {
	s.Graduator.Stop()
	s.Sweeper.Stop()
	s.log.Info("cache service stopped")
}

// QueryResult is one end-to-end query pass.
type QueryResult struct {
	Promotion  *PromotionResult
	Paragraphs []ParagraphHit
}

// Query runs the full read path for one caller request: promote the entity
// keys not already fresh in the session's seen-set, fetch the live
// paragraphs they mention, and feed a hit event back for every returned
// edge.
func (s *Service) Query(ctx context.Context, seen SeenSet, sessionID string, entityKeys []string, limit int) (*QueryResult, error) {
	promotion, err := s.Promoter.Promote(ctx, seen, sessionID, entityKeys)
	if err != nil {
		return nil, err
	}

	paragraphs, err := s.Reader.FetchParagraphs(ctx, entityKeys, limit)
	if err != nil {
		return nil, err
	}

	for _, hit := range paragraphs {
		for _, edge := range hit.Edges {
			if _, err := s.Scorer.RecordHit(ctx, edge.Key); err != nil {
				if err == graph.ErrNotFound {
					continue
				}
				// Hit feedback is best-effort on the read path; a dropped
				// event is already in the audit trail.
				s.log.Warn("recording hit", logging.F("edge_key", edge.Key.String()), logging.Err(err))
			}
		}
	}

	return &QueryResult{Promotion: promotion, Paragraphs: paragraphs}, nil
}
