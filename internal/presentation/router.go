package presentation

import (
	"context"
	"net/http"
	"time"

	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/metrics"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Orders   *OrdersHandler
	Webhooks *WebhookHandler
	Shipping *ShippingHandler
	// DB is optional; without it /healthz only reports the process is up.
	DB             Pinger
	RequestTimeout time.Duration
	// RateLimitRPS limits /api requests per client IP; zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(d RouterDeps) http.Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", health(d.DB))
	r.Handle("/metrics", promhttp.Handler())

	if d.Webhooks != nil {
		d.Webhooks.Register(r)
	}
	r.Group(func(api chi.Router) {
		if d.RateLimitRPS > 0 {
			api.Use(newIPRateLimiter(d.RateLimitRPS, d.RateLimitBurst).middleware)
		}
		if d.Orders != nil {
			d.Orders.Register(api)
		}
		if d.Shipping != nil {
			d.Shipping.Register(api)
		}
	})
	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn("healthz: db ping failed", "err", err)
				helpers.HttpError(w, r, http.StatusServiceUnavailable, "unavailable", "database unreachable", nil)
				return
			}
		}
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
