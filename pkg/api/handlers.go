package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swebench-aug/strengthen/pkg/history"
	"github.com/swebench-aug/strengthen/pkg/models"
)

// handleHealth reports connectivity to the History Store.
func (s *Server) handleHealth(c *gin.Context) {
	status, err := history.Health(c.Request.Context(), s.history.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleListRuns handles GET /runs?benchmark=&model=&limit=&offset=
func (s *Server) handleListRuns(c *gin.Context) {
	filters := models.RunFilters{
		Benchmark: c.Query("benchmark"),
		Model:     c.Query("model"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filters.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		filters.Offset = n
	}

	runs, err := s.history.ListRuns(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// handleRunSummary handles GET /runs/:id
func (s *Server) handleRunSummary(c *gin.Context) {
	summary, err := s.history.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRunLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleInstancePhases handles GET /runs/:id/instances/:instance_id
//
// The History Store records one row per (run, instance, phase), but this
// endpoint issues no per-instance query: it reuses Summary and returns the
// whole run's phase counts alongside the requested instance_id. The counts
// are not filtered to that instance, and the handler does not check whether
// the instance appears in the run; it answers 404 only when the run has no
// recorded instances at all.
func (s *Server) handleInstancePhases(c *gin.Context) {
	runID := c.Param("id")
	instanceID := c.Param("instance_id")

	summary, err := s.history.Summary(c.Request.Context(), runID)
	if err != nil {
		writeRunLookupError(c, err)
		return
	}
	if summary.InstanceCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run has no recorded instances"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      runID,
		"instance_id": instanceID,
		"phases":      summary.PhaseCounts,
	})
}

// handlePoolStatus handles GET /runs/:id/pool. The :id is accepted for
// routing symmetry with the other run-scoped endpoints, but only one pool
// can be attached to a process at a time.
func (s *Server) handlePoolStatus(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no orchestrator run attached to this process"})
		return
	}
	c.JSON(http.StatusOK, s.pool.Stats())
}

func writeRunLookupError(c *gin.Context, err error) {
	if errors.Is(err, history.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
