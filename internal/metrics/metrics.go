package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Payment notifications processed, by outcome",
		},
		[]string{"outcome"},
	)

	carrierQuotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carrier_quotes_total",
			Help: "Carrier quote calls, by provider and result",
		},
		[]string{"provider", "result"},
	)

	carrierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carrier_quote_duration_seconds",
			Help:    "Latency of carrier quote calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"provider"},
	)
)

// Middleware records request count and latency labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func ObserveReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

func ObserveCarrierQuote(provider string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	carrierQuotes.WithLabelValues(provider, result).Inc()
	carrierDuration.WithLabelValues(provider).Observe(d.Seconds())
}
