// Package metrics provides Prometheus instrumentation for the exchange.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersPlaced counts orders accepted onto the book.
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swagbets_orders_placed_total",
		Help: "Total number of orders placed",
	})

	// OrdersCancelled counts orders withdrawn before full fulfilment.
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swagbets_orders_cancelled_total",
		Help: "Total number of orders cancelled",
	})

	// TradesTotal counts executed trades, partitioned by match kind.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swagbets_trades_total",
		Help: "Total number of trades executed",
	}, []string{"kind"})

	// TradeVolume tracks cumulative traded token quantity per kind.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swagbets_trade_volume_total",
		Help: "Cumulative trade volume in tokens",
	}, []string{"kind"})

	// Resolutions counts propositions settled.
	Resolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swagbets_resolutions_total",
		Help: "Total number of propositions resolved",
	})

	// ActivePropositions tracks the number of open propositions.
	ActivePropositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swagbets_active_propositions",
		Help: "Number of currently open propositions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swagbets_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swagbets_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swagbets_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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
