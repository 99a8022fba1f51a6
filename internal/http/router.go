package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/bookingcal/internal/config"
	httperrors "gitea.jw6.us/james/bookingcal/internal/http/errors"
	"gitea.jw6.us/james/bookingcal/internal/http/ratelimit"
	"gitea.jw6.us/james/bookingcal/internal/metrics"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Router is the service's HTTP handler. Close releases the rate limiter.
type Router struct {
	chi.Router
	limiter *ratelimit.Limiter
}

// NewRouter wires the probe, metrics and export routes.
func NewRouter(cfg *config.Config, health HealthChecker, exports ExportService, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	responder := httperrors.NewResponder(logger)
	limiter := ratelimit.New(rate.Limit(cfg.Export.RatePerSecond), cfg.Export.Burst, 5*time.Minute, cfg.TrustedProxies, logger)

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			responder.LogError(r, "readiness check failed", err)
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.Middleware())
		r.Method(http.MethodGet, "/options/{optionID}/booking.ics", &exportHandler{svc: exports, errors: responder})
	})

	return &Router{Router: r, limiter: limiter}
}

// Close stops background work started by NewRouter.
func (r *Router) Close() {
	r.limiter.Close()
}
