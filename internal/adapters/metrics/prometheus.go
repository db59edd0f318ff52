// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	registry *prometheus.Registry

	downloadsStarted    prometheus.Counter
	downloadsFinished   *prometheus.CounterVec
	activeDownloads     prometheus.Gauge
	downloadedBytes     prometheus.Counter
	engineOperations    *prometheus.CounterVec
	engineDuration      *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry, which also carries
// the Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "regiond"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		downloadsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_started_total",
				Help:      "Total number of started region downloads",
			},
		),

		downloadsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_finished_total",
				Help:      "Total number of finished region downloads",
			},
			[]string{"status"},
		),

		activeDownloads: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_downloads",
				Help:      "Number of registered in-flight downloads",
			},
		),

		downloadedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Total number of tile bytes downloaded",
			},
		),

		engineOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_operations_total",
				Help:      "Total number of offline engine operations",
			},
			[]string{"operation", "status"},
		),

		engineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_operation_duration_seconds",
				Help:      "Offline engine operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncDownloadsStarted increments the started downloads counter.
func (c *Collector) IncDownloadsStarted() {
	c.downloadsStarted.Inc()
}

// IncDownloadsFinished increments the finished downloads counter.
func (c *Collector) IncDownloadsFinished(success bool) {
	c.downloadsFinished.WithLabelValues(successLabel(success)).Inc()
}

// SetActiveDownloads sets the number of registered downloads.
func (c *Collector) SetActiveDownloads(count int) {
	c.activeDownloads.Set(float64(count))
}

// AddDownloadedBytes adds to the downloaded bytes counter.
func (c *Collector) AddDownloadedBytes(n int64) {
	if n > 0 {
		c.downloadedBytes.Add(float64(n))
	}
}

// IncEngineOperations increments the engine operation counter.
func (c *Collector) IncEngineOperations(operation string, success bool) {
	c.engineOperations.WithLabelValues(operation, successLabel(success)).Inc()
}

// ObserveEngineDuration records engine operation duration.
func (c *Collector) ObserveEngineDuration(operation string, duration time.Duration) {
	c.engineDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware returns HTTP middleware for metrics collection. Requests are
// labelled with their mux route template to keep cardinality bounded.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routeTemplate(r)
		c.httpRequestsTotal.WithLabelValues(r.Method, path, statusToString(wrapped.statusCode)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// routeTemplate returns the matched route's path template.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 100 && code < 600:
		return strconv.Itoa(code/100) + "xx"
	default:
		return "unknown"
	}
}

// Server serves metrics on a dedicated port.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server exposing handler at path.
func NewServer(port int, path string, handler http.Handler, logger *slog.Logger) *Server {
	serveMux := http.NewServeMux()
	serveMux.Handle(path, handler)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           serveMux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
