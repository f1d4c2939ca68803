// Package metrics provides Prometheus instrumentation for the client desk.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts recorded transactions by type and status.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_transactions_total",
		Help: "Total number of transactions recorded",
	}, []string{"type", "status"})

	// OrphanTransactions counts transactions stored for a client that does not exist.
	OrphanTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_orphan_transactions_total",
		Help: "Transactions recorded against an unknown client",
	})

	// NotsRecalculations counts nots recalculations by trigger.
	NotsRecalculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_nots_recalculations_total",
		Help: "Client nots recalculations",
	}, []string{"trigger"})

	// StatsComputations counts dashboard snapshot computations.
	StatsComputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_stats_computations_total",
		Help: "Dashboard statistics computations",
	})

	// SnapshotFetchFailures counts collections that failed to load.
	SnapshotFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_snapshot_fetch_failures_total",
		Help: "Snapshot collection fetch failures",
	}, []string{"collection"})

	// Clients tracks the number of clients in the last computed snapshot.
	Clients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_clients",
		Help: "Number of clients in the last computed snapshot",
	})

	// TotalNots tracks the fleet nots total.
	TotalNots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_total_nots",
		Help: "Sum of current nots across clients",
	})

	// TargetNots tracks the fleet nots target.
	TargetNots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_target_nots",
		Help: "Fleet nots target derived from total equity",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "desk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern prefers the matched chi pattern so ids do not become labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
