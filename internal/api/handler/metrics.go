package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/genledger/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genledger_generations_total",
		Help: "Completed generation requests by kind and outcome (generated or fallback).",
	}, []string{"kind", "outcome"})

	backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genledger_backend_latency_seconds",
		Help:    "Time spent waiting on the text generation backend.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	ledgerRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genledger_ledger_records_total",
		Help: "Total ledger records written by kind.",
	}, []string{"kind"})

	ledgerLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genledger_ledger_lookups_total",
		Help: "Total ledger lookups by result.",
	}, []string{"result"})

	ledgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genledger_ledger_entries",
		Help: "Distinct digests on record, as of the last health probe.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordGeneration records one completed generation. Its signature matches
// generation.MetricsRecorder.
func RecordGeneration(kind ledger.Kind, degraded bool, latency time.Duration) {
	outcome := "generated"
	if degraded {
		outcome = "fallback"
	}
	generationsTotal.WithLabelValues(string(kind), outcome).Inc()
	backendLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
	ledgerRecordsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordLookup records a verification lookup.
func RecordLookup(found bool) {
	if found {
		ledgerLookupsTotal.WithLabelValues("found").Inc()
	} else {
		ledgerLookupsTotal.WithLabelValues("not_found").Inc()
	}
}

// SetLedgerEntries sets the ledger size gauge.
func SetLedgerEntries(n int) {
	ledgerEntries.Set(float64(n))
}
