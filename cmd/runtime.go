// Package cmd provides CLI commands for the engram tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/engram-io/engram/config"
	"github.com/engram-io/engram/pkg/audit"
	"github.com/engram-io/engram/pkg/cache"
	"github.com/engram-io/engram/pkg/db"
	"github.com/engram-io/engram/pkg/graph"
	"github.com/engram-io/engram/pkg/logging"
	"github.com/engram-io/engram/pkg/observability"
)

// Deps holds the injectable dependencies shared by all commands.
type Deps struct {
	Config     *config.Config
	LoadConfig func() (*config.Config, error)
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig: config.LoadConfig,
	}
}

func (d *Deps) loadConfig() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	return d.LoadConfig()
}

// Runtime is the wired-up application state a command operates on.
type Runtime struct {
	Config   *config.Config
	Log      logging.Logger
	Durable  graph.Store
	Volatile graph.Store
	Recorder audit.Recorder
	Metrics  *observability.CacheMetrics
	Registry *prometheus.Registry
	Service  *cache.Service

	// Pools holds the pgx pool of each postgres-backed plane, keyed by
	// plane name, for health probes and pool-stats metrics.
	Pools map[string]*pgxpool.Pool

	closers []func() error
}

// trackPool exposes a plane's pgx pool on the health endpoint and registers
// its pool statistics with the metrics registry. Planes on other stores
// carry no pool and are skipped.
func (r *Runtime) trackPool(plane string, pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	if r.Pools == nil {
		r.Pools = make(map[string]*pgxpool.Pool)
	}
	r.Pools[plane] = pool
	if err := db.RegisterPoolStats(r.Registry, pool, plane); err != nil {
		r.Log.Warn("registering pool stats", logging.F("plane", plane), logging.Err(err))
	}
}

// HealthHandler reports connectivity of the postgres-backed planes as JSON.
// A plane that fails its ping turns the response into a 503.
func (r *Runtime) HealthHandler() http.HandlerFunc {
	type planeStatus struct {
		Healthy    bool   `json:"healthy"`
		LatencyMs  int64  `json:"latency_ms"`
		TotalConns int32  `json:"total_conns"`
		Error      string `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		healthy := true
		planes := make(map[string]planeStatus, len(r.Pools))
		for plane, pool := range r.Pools {
			status := db.Check(ctx, pool)
			ps := planeStatus{
				Healthy:    status.Healthy,
				LatencyMs:  status.Latency.Milliseconds(),
				TotalConns: status.TotalConns,
			}
			if status.Error != nil {
				ps.Error = status.Error.Error()
			}
			if !status.Healthy {
				healthy = false
			}
			planes[plane] = ps
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{"healthy": healthy, "planes": planes})
	}
}

// Close releases all backing resources in reverse acquisition order.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.Log.Warn("closing resource", logging.Err(err))
		}
	}
}

// buildRuntime wires stores, audit recorder, metrics, and the cache service
// from configuration.
func buildRuntime(ctx context.Context, deps *Deps) (*Runtime, error) {
	cfg, err := deps.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := logging.Level(cfg.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	log := logging.NewLogger(&logging.Config{
		Level:       level,
		ServiceName: "engram",
		JSONFormat:  cfg.LogJSON,
	})

	rt := &Runtime{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
	}
	rt.Metrics = observability.NewCacheMetrics(rt.Registry)

	var pool *pgxpool.Pool
	rt.Durable, pool, err = openStore(ctx, cfg.Durable)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("opening durable store: %w", err)
	}
	rt.closers = append(rt.closers, rt.Durable.Close)
	rt.trackPool("durable", pool)

	rt.Volatile, pool, err = openStore(ctx, cfg.Volatile)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("opening volatile store: %w", err)
	}
	rt.closers = append(rt.closers, rt.Volatile.Close)
	rt.trackPool("volatile", pool)

	rt.Recorder, err = openRecorder(ctx, cfg.Audit)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("opening audit recorder: %w", err)
	}
	if closer, ok := rt.Recorder.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}

	rt.Service = cache.NewService(rt.Durable, rt.Volatile, cfg.CacheConfig(), log, rt.Metrics, rt.Recorder)
	return rt, nil
}

// openStore opens the configured store. Postgres stores also return their
// pgx pool so the runtime can track it.
func openStore(ctx context.Context, cfg config.StoreConfig) (graph.Store, *pgxpool.Pool, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return graph.NewMemoryStore(), nil, nil
	case config.StoreRedis:
		addr := cfg.Address
		if addr == "" {
			addr = config.DefaultRedisAddress
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
		}
		return graph.NewRedisStore(client), nil, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, db.DefaultConfig(cfg.DSN))
		if err != nil {
			return nil, nil, err
		}
		store := graph.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool, nil
	case config.StoreBadger:
		store, err := graph.OpenBadgerStore(cfg.Path)
		return store, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown store kind: %q", cfg.Kind)
	}
}

func openRecorder(ctx context.Context, cfg config.AuditConfig) (audit.Recorder, error) {
	switch cfg.Backend {
	case "postgres":
		return audit.OpenPostgresRecorder(ctx, cfg.DSN)
	default:
		return audit.NewMemoryRecorder(), nil
	}
}
