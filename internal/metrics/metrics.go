package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantity-sync-service/internal/models"
)

// Collector holds the service metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SyncRunsTotal   *prometheus.CounterVec
	SyncRunDuration *prometheus.HistogramVec
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	RecordsTotal    *prometheus.CounterVec
	ChangesTotal    *prometheus.CounterVec
	LastMatchRatio  *prometheus.GaugeVec
}

// NewCollector creates and registers the metrics under namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)
	c.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)
	c.SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Finished sync runs by outcome",
		},
		[]string{"store", "mode", "status"},
	)
	c.SyncRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"store", "mode"},
	)
	c.BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_batches_total",
			Help:      "Submitted mutation batches by outcome",
		},
		[]string{"store", "outcome"},
	)
	c.BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_batch_duration_seconds",
			Help:      "Mutation batch round trip in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store"},
	)
	c.RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Processed file records by resolution outcome",
		},
		[]string{"store", "outcome"},
	)
	c.ChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_changes_total",
			Help:      "Planned and applied inventory changes",
		},
		[]string{"store", "stage"},
	)
	c.LastMatchRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_last_match_ratio",
			Help:      "Share of non-blank records matched in the last run",
		},
		[]string{"store"},
	)

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.RequestsTotal,
		c.RequestDuration,
		c.SyncRunsTotal,
		c.SyncRunDuration,
		c.BatchesTotal,
		c.BatchDuration,
		c.RecordsTotal,
		c.ChangesTotal,
		c.LastMatchRatio,
	)
	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latencies per route
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := ctx.Request.Method
		c.RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// RunCompleted records a finished run
func (c *Collector) RunCompleted(store string, mode models.SyncMode, status models.RunStatus, duration time.Duration) {
	c.SyncRunsTotal.WithLabelValues(store, string(mode), string(status)).Inc()
	c.SyncRunDuration.WithLabelValues(store, string(mode)).Observe(duration.Seconds())
}

// BatchSubmitted records one batch round trip
func (c *Collector) BatchSubmitted(store string, failed bool, duration time.Duration) {
	outcome := "applied"
	if failed {
		outcome = "failed"
	}
	c.BatchesTotal.WithLabelValues(store, outcome).Inc()
	c.BatchDuration.WithLabelValues(store).Observe(duration.Seconds())
}

// RecordsProcessed records the resolution and change counts of a run
func (c *Collector) RecordsProcessed(store string, stats models.SyncStats) {
	c.RecordsTotal.WithLabelValues(store, "matched").Add(float64(stats.MatchedRecords))
	c.RecordsTotal.WithLabelValues(store, "unmatched").Add(float64(stats.UnmatchedRecords))
	c.RecordsTotal.WithLabelValues(store, "ambiguous").Add(float64(stats.AmbiguousRecords))
	c.RecordsTotal.WithLabelValues(store, "lookup_failed").Add(float64(stats.LookupFailedRecords))
	c.RecordsTotal.WithLabelValues(store, "rejected").Add(float64(stats.RejectedRecords))
	c.ChangesTotal.WithLabelValues(store, "planned").Add(float64(stats.PlannedChanges))
	c.ChangesTotal.WithLabelValues(store, "applied").Add(float64(stats.AppliedChanges))
	c.LastMatchRatio.WithLabelValues(store).Set(stats.MatchRatio)
}
