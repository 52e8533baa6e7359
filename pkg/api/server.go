// Package api implements the read-only status dashboard (C9): a thin
// gin HTTP server over the History Store, reporting run and phase
// progress for operators watching a batch in flight.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swebench-aug/strengthen/pkg/history"
	"github.com/swebench-aug/strengthen/pkg/orchestrator"
)

// Server is the status dashboard's HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	history    *history.Client
	pool       *orchestrator.WorkerPool // nil if no pool is attached yet
}

// NewServer builds a dashboard server backed by hist. pool is optional and
// may be nil when no live orchestrator run is attached to this process.
func NewServer(hist *history.Client, pool *orchestrator.WorkerPool) *Server {
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	s := &Server{engine: engine, history: hist, pool: pool}
	s.setupRoutes()
	return s
}

// AttachPool lets main wire a pool in after construction, once the
// orchestrator starts a run.
func (s *Server) AttachPool(pool *orchestrator.WorkerPool) {
	s.pool = pool
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/runs", s.handleListRuns)
	s.engine.GET("/runs/:id", s.handleRunSummary)
	s.engine.GET("/runs/:id/instances/:instance_id", s.handleInstancePhases)
	s.engine.GET("/runs/:id/pool", s.handlePoolStatus)
}

// Start begins serving on addr and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard: listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("dashboard: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
