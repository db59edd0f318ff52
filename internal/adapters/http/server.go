// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jobrunner/regiond/internal/config"
	"github.com/jobrunner/regiond/internal/ports/input"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const defaultMaxBodyBytes = 1 << 20

type contextKey int

const requestIDKey contextKey = iota

// Server wraps the HTTP server with application handlers.
type Server struct {
	server  *http.Server
	router  *mux.Router
	regions input.RegionService
	health  input.HealthChecker
	logger  *slog.Logger
	config  config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	regions input.RegionService,
	health input.HealthChecker,
	logger *slog.Logger,
) *Server {
	s := &Server{
		regions: regions,
		health:  health,
		logger:  logger,
		config:  cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Region endpoints
	api.HandleFunc("/regions", s.handleStartDownload).Methods(http.MethodPost)
	api.HandleFunc("/regions", s.handleListRegions).Methods(http.MethodGet)
	api.HandleFunc("/regions/{id}", s.handleGetRegion).Methods(http.MethodGet)
	api.HandleFunc("/regions/{id}", s.handleDeleteRegion).Methods(http.MethodDelete)

	// In-flight download endpoints
	api.HandleFunc("/downloads", s.handleListDownloads).Methods(http.MethodGet)
	api.HandleFunc("/downloads/{id}/events", s.handleDownloadEvents).Methods(http.MethodGet)
	api.HandleFunc("/downloads/{id}", s.handleReleaseDownload).Methods(http.MethodDelete)

	// OpenAPI spec
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the root handler. CORS wraps the router so that preflight
// requests are answered before route matching.
func (s *Server) Handler() http.Handler {
	if s.config.CORS.Enabled() {
		return s.corsMiddleware(s.router)
	}
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware propagates or assigns a request id.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// requestID returns the id assigned by requestIDMiddleware.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
			"request_id", requestID(r.Context()),
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
