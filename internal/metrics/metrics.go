package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingcal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingcal_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookingcal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookingcal_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingcal_exports_total",
		Help: "Calendar attachments produced, by METHOD.",
	}, []string{"method"})

	exportEvents = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookingcal_export_events",
		Help:    "Number of VEVENT blocks per exported attachment.",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	exportFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingcal_export_failures_total",
		Help: "Calendar exports that failed, by reason.",
	}, []string{"reason"})
)

// Middleware records request metrics labelled by the chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// chi fills in the pattern while routing, so read it afterwards.
			label := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, label).Inc()
			httpRequestDuration.WithLabelValues(r.Method, label, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, label, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with the request route when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveExport counts a produced attachment and its number of events.
func ObserveExport(method string, events int) {
	exportsTotal.WithLabelValues(method).Inc()
	exportEvents.Observe(float64(events))
}

// ObserveExportFailure counts a failed export.
func ObserveExportFailure(reason string) {
	exportFailuresTotal.WithLabelValues(reason).Inc()
}

func routeFromContext(ctx context.Context) string {
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if route := routeFromContext(r.Context()); route != "unknown" {
		return route
	}
	return r.URL.Path
}
