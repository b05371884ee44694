// Package metrics defines the prometheus instrumentation for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insight_build_info",
		Help: "Build information.",
	}, []string{"version", "commit", "date"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insight_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	AnalysisOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_analyses_total",
		Help: "Completed analysis pipelines by outcome (completed, rejected, failed).",
	}, []string{"outcome"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_stage_failures_total",
		Help: "Terminal pipeline stage failures by stage.",
	}, []string{"stage"})

	ReportsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insight_reports_generated_total",
		Help: "PDF reports written to the report directory.",
	})
)

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
