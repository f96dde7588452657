package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/queue"
)

func fetchHealth(t *testing.T, s *Server) (int, *HealthResponse) {
	t.Helper()
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	var out HealthResponse
	decodeBody(t, rec, &out)
	return rec.Code, &out
}

func TestHealthDegradedWithoutLLMKey(t *testing.T) {
	s := newTestServer(t)

	code, out := fetchHealth(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, "healthy", out.Checks["database"].Status)
	assert.Equal(t, "degraded", out.Checks["llm"].Status)
	assert.Contains(t, out.Checks["llm"].Message, "no API key")
	// No pool wired means no pool check at all.
	assert.NotContains(t, out.Checks, "worker_pool")
}

func TestHealthHealthyWithPoolAndKey(t *testing.T) {
	s := newTestServer(t)
	s.cfg.OpenRouter.APIKey = "sk-test"

	pool := queue.NewWorkerPool(s.cfg.Queue, queue.NewTestBench(s.engine))
	pool.Start()
	t.Cleanup(pool.Stop)
	s.workerPool = pool

	code, out := fetchHealth(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "healthy", out.Checks["database"].Status)
	assert.Equal(t, "healthy", out.Checks["worker_pool"].Status)
	assert.Equal(t, "healthy", out.Checks["llm"].Status)
}

func TestHealthStoppedPoolDegrades(t *testing.T) {
	s := newTestServer(t)
	s.cfg.OpenRouter.APIKey = "sk-test"

	pool := queue.NewWorkerPool(s.cfg.Queue, queue.NewTestBench(s.engine))
	pool.Start()
	pool.Stop()
	s.workerPool = pool

	code, out := fetchHealth(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, "degraded", out.Checks["worker_pool"].Status)
	assert.Equal(t, "pool is not running", out.Checks["worker_pool"].Message)
}

func TestHealthUnhealthyWhenDatabaseDown(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.dbClient.Close())

	code, out := fetchHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", out.Status)
	assert.Equal(t, "unhealthy", out.Checks["database"].Status)
	assert.NotEmpty(t, out.Checks["database"].Message)
}
