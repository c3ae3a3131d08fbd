// Package server implements the HTTP surface of the Luna RAG service: chat,
// ingestion, knowledge-base administration, health, readiness and metrics.
// The server is started by the `luna serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Default values applied by New when the matching Config field is zero.
const (
	defaultChatTimeout    = 2 * time.Minute
	defaultMaxUploadBytes = 32 << 20
)

// New constructs a Server from the provided components and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	switch {
	case deps.Assistant == nil:
		return nil, fmt.Errorf("server: assistant must not be nil")
	case deps.Retriever == nil:
		return nil, fmt.Errorf("server: retriever must not be nil")
	case deps.Ingestion == nil:
		return nil, fmt.Errorf("server: ingestion pipeline must not be nil")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("server: catalog must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast a chat request that falls back.
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler: CORS, then request
// logging, then metrics instrumentation around the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat/history/{session_id}", s.handleHistory)

	mux.HandleFunc("POST /ingest/document", s.handleIngestDocument)
	mux.HandleFunc("POST /ingest/file", s.handleIngestFile)

	mux.HandleFunc("POST /kb/search", s.handleSearch)
	mux.HandleFunc("GET /kb/stats", s.handleStats)
	mux.HandleFunc("GET /kb/documents", s.handleListDocuments)
	mux.HandleFunc("GET /kb/documents/{doc_id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /kb/documents/{doc_id}", s.handleDeleteDocument)
	mux.HandleFunc("PUT /kb/documents/{doc_id}/category", s.handlePromoteCategory)
	mux.HandleFunc("GET /kb/export", s.handleExport)
	mux.HandleFunc("DELETE /kb/clear", s.handleClear)

	return s.corsHandler().Handler(requestLogger(s.log, s.instrument(mux)))
}

// corsHandler builds the CORS policy. Credentials are only allowed when the
// origin list is explicit.
func (s *Server) corsHandler() *cors.Cors {
	wildcard := false
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: !wildcard,
	})
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("luna server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("luna server stopped")
		return nil
	}
}
