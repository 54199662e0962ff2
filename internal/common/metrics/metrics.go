// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "underwriting_stage_runs_total",
			Help: "Pipeline stage executions by outcome",
		},
		[]string{"stage", "status"},
	)

	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "underwriting_fallbacks_total",
			Help: "Decisions produced by the scoring fallback",
		},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "underwriting_decisions_total",
			Help: "Underwriting decisions by status and source",
		},
		[]string{"status", "source"},
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "underwriting_decision_duration_seconds",
			Help:    "Time to produce a decision",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "underwriting_persistence_failures_total",
			Help: "Decisions returned without being persisted",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "underwriting_cache_lookups_total",
			Help: "Application cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "underwriting_http_requests_total",
			Help: "REST API requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)
)
