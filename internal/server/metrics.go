package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by route pattern rather than raw path
// so document ids do not explode cardinality.
const labelHandler = "handler"

// unmatchedHandler is the handler label for requests no route matched.
const unmatchedHandler = "unmatched"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts /chat requests by outcome and serving provider.
	chatRequestsTotal *prometheus.CounterVec
	// chatDurationSeconds records the duration of /chat requests, fallback included.
	chatDurationSeconds *prometheus.HistogramVec
	// ingestDocumentsTotal counts ingest requests by outcome.
	ingestDocumentsTotal *prometheus.CounterVec
	// ingestChunksTotal counts chunks written by ingestion, partial writes included.
	ingestChunksTotal prometheus.Counter
	// searchDurationSeconds records /kb/search latency.
	searchDurationSeconds prometheus.Histogram
	// httpRequestsTotal counts all HTTP requests by method, route and status.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /chat requests, partitioned by outcome and serving provider.",
		}, []string{"outcome", "provider"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "luna",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /chat requests including any fallback attempt.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 90, 120},
		}, []string{"outcome"}),

		ingestDocumentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of ingest requests, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks written to the knowledge store.",
		}),

		searchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "luna",
			Subsystem: "kb",
			Name:      "search_duration_seconds",
			Help:      "Latency of knowledge-base searches served by /kb/search.",
			Buckets:   prometheus.DefBuckets,
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "luna",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "luna",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency per route. The route label
// is read from r.Pattern after the mux has matched it.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = unmatchedHandler
		}
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
