// Package server provides the HTTP API for inqdoc.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/config"
	"github.com/hyperjump/inqdoc/internal/pipeline"
)

const (
	requestTimeout  = 5 * time.Minute
	requestIDHeader = "X-Request-Id"
)

// Server is the HTTP server for the inqdoc API.
type Server struct {
	pipeline  *pipeline.Pipeline
	config    *config.ServerConfig
	logger    *zap.Logger
	maxUpload int64
	server    *http.Server
}

// NewServer creates a server over p.
func NewServer(p *pipeline.Pipeline, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := int64(cfg.MaxUploadMiB) << 20
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &Server{
		pipeline:  p,
		config:    cfg,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleIngestDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Put("/blobs/*", s.handlePutBlob)
		r.With(middleware.Compress(5)).Post("/search", s.handleSearch)
		r.With(middleware.Compress(5)).Post("/ask", s.handleAsk)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestID keeps a caller-supplied X-Request-Id or assigns a UUID, echoes it in
// the response and stores it where middleware.GetReqID finds it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
