package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heron_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	billsUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heron_bills_uploaded_total",
		Help: "Bills accepted for scoring.",
	}, []string{"tenant"})

	reportsByRecommendation = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heron_reports_total",
		Help: "Fraud reports produced, by recommendation.",
	}, []string{"recommendation"})

	billDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heron_bill_decisions_total",
		Help: "Terminal approval decisions, by status.",
	}, []string{"status"})
)

// MetricsMiddleware records request latency and status counts.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		httpRequestDuration.
			WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
