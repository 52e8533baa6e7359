package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/swebench-aug/strengthen/pkg/orchestrator"
)

type noopExecutor struct{}

func (noopExecutor) ExecutePhase(ctx context.Context, instanceID string) error { return nil }

func init() {
	gin.SetMode(gin.TestMode)
}

// We only test parameter validation and pool-attachment behavior here.
// The happy path needs a live History Store and is covered by
// pkg/history's testcontainers-backed tests.
func TestHandleListRuns_InvalidQueryParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "invalid limit", query: "limit=not-a-number"},
		{name: "invalid offset", query: "offset=not-a-number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/runs?"+tt.query, nil)

			s.handleListRuns(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandlePoolStatus_NoPoolAttached(t *testing.T) {
	s := &Server{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/runs/run-1/pool", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	s.handlePoolStatus(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlePoolStatus_PoolAttached(t *testing.T) {
	pool := orchestrator.NewWorkerPool(orchestrator.PoolConfig{WorkerCount: 2}, noopExecutor{})
	s := &Server{pool: pool}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/runs/run-1/pool", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	s.handlePoolStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
}
