package db

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("postgres://engram@localhost/engram")

	assert.Equal(t, "postgres://engram@localhost/engram", cfg.DSN)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
}

func TestConnectRejectsBadDSN(t *testing.T) {
	_, err := Connect(context.Background(), DefaultConfig("not a dsn ::"))
	require.Error(t, err)
}

func TestCheckNilPool(t *testing.T) {
	status := Check(context.Background(), nil)
	assert.False(t, status.Healthy)
	assert.Error(t, status.Error)
}

func TestPoolStatsCollectorNilPool(t *testing.T) {
	collector := NewPoolStatsCollector(nil, "durable")
	assert.Zero(t, testutil.CollectAndCount(collector))
}

func TestRegisterPoolStatsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolStats(reg, nil, "durable"))
	require.NoError(t, RegisterPoolStats(reg, nil, "durable"))
}

func TestRegisterPoolStatsDistinctPlanes(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolStats(reg, nil, "durable"))
	require.NoError(t, RegisterPoolStats(reg, nil, "volatile"))
}
