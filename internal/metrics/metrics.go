package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipexec_executions_total",
			Help: "Total number of snippet executions by outcome",
		},
		[]string{"language", "outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snipexec_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language", "phase"}, // phase: "compile", "run", "total"
	)

	UnknownLanguageTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snipexec_unknown_language_total",
			Help: "Requests naming a language that is not registered",
		},
	)

	LiveWorkspaces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snipexec_live_workspaces",
			Help: "Workspaces acquired and not yet released",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snipexec_queue_depth",
			Help: "Current number of jobs in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snipexec_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snipexec_container_creation_ms",
			Help:    "Time to create and start a sandbox container",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snipexec_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	QueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snipexec_queue_rejections_total",
			Help: "Jobs rejected because the queue was full",
		},
	)
)
