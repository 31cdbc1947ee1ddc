// Package metrics provides Prometheus instrumentation for the vault.
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
	// OperationsTotal counts vault operations by kind and outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zdte_operations_total",
		Help: "Total vault operations by kind and result",
	}, []string{"op", "result"})

	// OperationLatency tracks vault operation latency.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zdte_operation_latency_seconds",
		Help:    "Vault operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Rejections counts failed operations by error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zdte_rejections_total",
		Help: "Vault operations rejected, by reason",
	}, []string{"op", "reason"})

	// PoolAssets tracks each pool's total assets in smallest units.
	PoolAssets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zdte_pool_total_assets",
		Help: "Total assets held by each pool",
	}, []string{"side"})

	// PoolLocked tracks each pool's locked assets.
	PoolLocked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zdte_pool_locked_assets",
		Help: "Assets locked against open positions",
	}, []string{"side"})

	// PoolShares tracks each pool's share supply.
	PoolShares = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zdte_pool_total_shares",
		Help: "Outstanding pool shares",
	}, []string{"side"})

	// OpenPositions tracks unsettled positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zdte_open_positions",
		Help: "Number of unsettled positions",
	})

	// PremiumsTotal accumulates premiums collected, in quote units.
	PremiumsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zdte_premiums_total",
		Help: "Premiums collected in quote smallest units",
	}, []string{"kind"})

	// PayoutsTotal accumulates settlement payouts per pool.
	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zdte_payouts_total",
		Help: "Settlement payouts in the paying pool's smallest units",
	}, []string{"side"})

	// SettlementOverruns counts payouts that exceeded their locked collateral.
	SettlementOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zdte_settlement_overruns_total",
		Help: "Settlements aborted because the payout exceeded locked collateral",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zdte_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zdte_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zdte_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps label cardinality bounded (no position ids).
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

// Hijack lets the WebSocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
