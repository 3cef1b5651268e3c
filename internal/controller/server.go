// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"sandplane/internal/controller/handlers"
	"sandplane/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server. metricsHandler serves the Prometheus
// scrape endpoint; pass nil to disable it.
func New(addr string, h *handlers.Handlers, limiter *middleware.RateLimiter, metricsHandler http.Handler) *Server {
	rateMW := limiter.Middleware()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.HandleFunc("GET /providers", h.ListProviders)
	mux.HandleFunc("GET /providers/{id}", h.GetProvider)

	mux.HandleFunc("GET /executions/{id}", h.GetExecution)
	mux.HandleFunc("POST /executions/{id}/stop", h.StopExecution)
	mux.HandleFunc("POST /executions/{id}/retry", h.RetryExecution)
	mux.HandleFunc("GET /executions/{id}/logs", h.GetLogs)
	mux.HandleFunc("GET /executions/{id}/logs/search", h.SearchLogs)
	mux.HandleFunc("GET /executions/{id}/logs/stream", h.StreamLogs)
	mux.HandleFunc("GET /executions/{id}/artifacts", h.ListArtifacts)

	mux.HandleFunc("GET /artifacts/{id}", h.GetArtifact)
	mux.HandleFunc("GET /artifacts/{id}/download", h.DownloadArtifact)
	mux.HandleFunc("DELETE /artifacts/{id}", h.DeleteArtifact)

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     rateMW(mux),
			ReadTimeout: 10 * time.Second,
			// No write timeout: SSE streams stay open for the lifetime
			// of the execution.
			WriteTimeout: 0,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
