// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	RecordsCollected *prometheus.CounterVec
	PagesFetched     *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	HolderLookups    *prometheus.CounterVec
	FetchLatency     *prometheus.HistogramVec

	// Classification metrics
	RecordsWindowed prometheus.Counter
	RecordsPassed   *prometheus.CounterVec

	// Retention metrics
	RawPurged *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram
	RunsRejected      *prometheus.CounterVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_screener"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RecordsCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_collected_total",
			Help:      "Total number of candidate records collected by source",
		}, []string{"source"}),
		PagesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pages_fetched_total",
			Help:      "Total number of pages fetched by source",
		}, []string{"source"}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_errors_total",
			Help:      "Total number of source fetch failures by kind (retryable, terminal)",
		}, []string{"source", "kind"}),
		HolderLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "holder_lookups_total",
			Help:      "Total number of holder concentration lookups by result",
		}, []string{"result"}),
		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_latency_seconds",
			Help:      "Page fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		RecordsWindowed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "records_windowed_total",
			Help:      "Total number of records inside the analysis window",
		}),
		RecordsPassed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "records_passed_total",
			Help:      "Total number of records passing classification by category",
		}, []string{"category"}),

		RawPurged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "raw_purged_total",
			Help:      "Total number of raw rows purged by reason (non_passed, expired)",
		}, []string{"reason"}),

		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RunsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_rejected_total",
			Help:      "Total number of run requests rejected by reason (in_progress, lease_held)",
		}, []string{"reason"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "notifications_total",
			Help:      "Total number of digest notifications by status",
		}, []string{"status"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulPipeline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordPageFetched records a successful page fetch.
func RecordPageFetched(source string, records int, seconds float64) {
	DefaultMetrics.PagesFetched.WithLabelValues(source).Inc()
	DefaultMetrics.RecordsCollected.WithLabelValues(source).Add(float64(records))
	DefaultMetrics.FetchLatency.WithLabelValues(source).Observe(seconds)
}

// RecordSourceError records a failed page fetch.
func RecordSourceError(source string, retryable bool) {
	kind := "terminal"
	if retryable {
		kind = "retryable"
	}
	DefaultMetrics.SourceErrors.WithLabelValues(source, kind).Inc()
}

// RecordHolderLookup records a holder concentration lookup result (hit, miss, error, skipped).
func RecordHolderLookup(result string) {
	DefaultMetrics.HolderLookups.WithLabelValues(result).Inc()
}

// RecordClassification records window and pass counts for one run.
func RecordClassification(windowed int, passedByCategory map[string]int) {
	DefaultMetrics.RecordsWindowed.Add(float64(windowed))
	for category, n := range passedByCategory {
		DefaultMetrics.RecordsPassed.WithLabelValues(category).Add(float64(n))
	}
}

// RecordPurge records purged raw rows.
func RecordPurge(nonPassed, expired int64) {
	DefaultMetrics.RawPurged.WithLabelValues("non_passed").Add(float64(nonPassed))
	DefaultMetrics.RawPurged.WithLabelValues("expired").Add(float64(expired))
}

// RecordNotification records a notification attempt.
func RecordNotification(status string) {
	DefaultMetrics.Notifications.WithLabelValues(status).Inc()
}

// RecordRunRejected records a run request refused by single-flight protection.
func RecordRunRejected(reason string) {
	DefaultMetrics.RunsRejected.WithLabelValues(reason).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run and, on success, the health timestamp.
func RecordPipelineRun(status string, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PipelineDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulPipeline.Set(float64(finishedUnix))
	}
}
