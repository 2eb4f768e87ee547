// Package server exposes the run engine over HTTP: run lifecycle, the human
// queue of each run, approvals, stored history, and batch history.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leofalp/railgraph/core/approval"
	"github.com/leofalp/railgraph/core/batch"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/patterns/run"
	"github.com/leofalp/railgraph/providers/observability"
	"github.com/leofalp/railgraph/providers/store"
)

// Engine is the part of *run.Engine the server drives.
type Engine interface {
	Start(ctx context.Context, g graph.Graph, question string) (string, error)
	Status(runID string) (run.View, error)
	Runs() []run.View
	Pause(runID string) error
	Resume(runID string) error
	Cancel(runID string) error
	HumanQueue(runID string) (*humanloop.Queue, error)
	Approvals() *approval.Book
}

// Option configures a Server.
type Option func(*Server)

// WithStore serves finished runs from runStore, including runs started by
// earlier processes.
func WithStore(runStore store.RunStore) Option {
	return func(server *Server) {
		server.store = runStore
	}
}

// WithBatchRunner exposes the schedules and history of runner.
func WithBatchRunner(runner *batch.Runner) Option {
	return func(server *Server) {
		server.batch = runner
	}
}

// WithObserver logs every request through provider.
func WithObserver(provider observability.Provider) Option {
	return func(server *Server) {
		server.observer = provider
	}
}

type Server struct {
	engine   Engine
	store    store.RunStore
	batch    *batch.Runner
	observer observability.Provider
	router   *gin.Engine
}

// New builds the server and its routes.
func New(engine Engine, opts ...Option) *Server {
	server := &Server{engine: engine}
	for _, opt := range opts {
		opt(server)
	}

	router := gin.New()
	router.Use(gin.Recovery(), server.logRequests())
	server.routes(router)
	server.router = router
	return server
}

// Handler returns the HTTP handler, for tests and embedding.
func (server *Server) Handler() http.Handler {
	return server.router
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (server *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (server *Server) routes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	runs := router.Group("/runs")
	runs.POST("", server.startRun)
	runs.GET("", server.listRuns)
	runs.GET("/:id", server.getRun)
	runs.POST("/:id/pause", server.lifecycle(server.engine.Pause))
	runs.POST("/:id/resume", server.lifecycle(server.engine.Resume))
	runs.POST("/:id/cancel", server.lifecycle(server.engine.Cancel))
	runs.GET("/:id/human", server.getHuman)
	runs.POST("/:id/human/:ticket", server.submitHuman)
	runs.POST("/:id/human/:ticket/suspend", server.suspendHuman)

	router.GET("/approvals", server.listApprovals)
	router.POST("/approvals", server.seedApprovals)
	router.POST("/approvals/:id/decision", server.decideApproval)

	router.GET("/history", server.listHistory)
	router.GET("/batch", server.getBatch)
}

func (server *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		if server.observer == nil {
			return
		}
		server.observer.Debug(c.Request.Context(), "http request",
			observability.String(observability.AttrHTTPMethod, c.Request.Method),
			observability.String(observability.AttrHTTPURL, c.Request.URL.Path),
			observability.Int(observability.AttrHTTPStatusCode, c.Writer.Status()),
			observability.Duration(observability.AttrDuration, time.Since(started)),
		)
	}
}
