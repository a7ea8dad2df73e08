package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-io/engram/pkg/logging"
)

func TestHealthHandlerNoPools(t *testing.T) {
	rt := &Runtime{Log: logging.NewNopLogger()}

	rec := httptest.NewRecorder()
	rt.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Healthy bool `json:"healthy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Healthy)
}

func TestHealthHandlerUnreachablePlane(t *testing.T) {
	// A nil pool fails its probe the same way an unreachable database does.
	rt := &Runtime{
		Log:   logging.NewNopLogger(),
		Pools: map[string]*pgxpool.Pool{"durable": nil},
	}

	rec := httptest.NewRecorder()
	rt.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Healthy bool `json:"healthy"`
		Planes  map[string]struct {
			Healthy bool   `json:"healthy"`
			Error   string `json:"error"`
		} `json:"planes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Healthy)
	require.Contains(t, body.Planes, "durable")
	assert.False(t, body.Planes["durable"].Healthy)
	assert.NotEmpty(t, body.Planes["durable"].Error)
}
