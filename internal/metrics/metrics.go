// Package metrics provides Prometheus instrumentation for the fill ledger.
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

	"github.com/atmx/fill-ledger/internal/model"
	"github.com/atmx/fill-ledger/internal/reconcile"
)

var (
	// FillsIngested counts ingested fill records, partitioned by status.
	FillsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_fills_ingested_total",
		Help: "Fill records ingested, by order status",
	}, []string{"status"})

	// ParseDefects counts log lines that could not be parsed at ingest.
	ParseDefects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_parse_defects_total",
		Help: "Unreadable fill log lines seen at ingest",
	})

	// FoldDuration tracks the time to fold and reconcile the full log.
	FoldDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_fold_duration_seconds",
		Help:    "Time to fold and reconcile the fill log",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// OpenPositions tracks the number of open positions at the last reconciliation.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_open_positions",
		Help: "Open positions at the last reconciliation",
	})

	// UnrealizedPnL tracks unrealized P&L in USD at the last reconciliation.
	UnrealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_unrealized_pnl_usd",
		Help: "Unrealized P&L at the last reconciliation",
	})

	// RealizedPnL tracks realized P&L in USD at the last reconciliation.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_realized_pnl_usd",
		Help: "Realized P&L at the last reconciliation",
	})

	// SkipRate tracks the skip rate in percent.
	SkipRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_skip_rate_percent",
		Help: "Share of trades skipped, in percent",
	})

	// Warnings exposes the active data-quality warnings.
	Warnings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_warnings",
		Help: "Active data-quality warnings (count, or 1 when uncounted)",
	}, []string{"code"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveIngest records an ingested batch.
func ObserveIngest(log model.FillLog) {
	for _, r := range log.Records {
		FillsIngested.WithLabelValues(string(r.Status)).Inc()
	}
	ParseDefects.Add(float64(len(log.Defects)))
}

// ObserveReconciliation publishes the gauges of a reconciliation.
func ObserveReconciliation(r reconcile.Result, took time.Duration) {
	FoldDuration.Observe(took.Seconds())
	OpenPositions.Set(float64(r.OpenPositions))
	UnrealizedPnL.Set(r.UnrealizedPnL.InexactFloat64())
	RealizedPnL.Set(r.RealizedPnL.InexactFloat64())
	SkipRate.Set(r.SkipRatePct.InexactFloat64())

	Warnings.Reset()
	for _, w := range r.Warnings {
		v := float64(w.Count)
		if v == 0 {
			v = 1
		}
		Warnings.WithLabelValues(string(w.Code)).Set(v)
	}
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

// Hijack passes through to the underlying writer so WebSocket upgrades work
// behind the middleware.
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
