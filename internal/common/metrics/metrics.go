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

	// RequestsTotal counts dispatched ILS operations. outcome is one of
	// success, failure, rejected (validation) or timeout.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circulation_requests_total",
			Help: "Dispatched ILS operations by institution and outcome",
		},
		[]string{"operation", "institution", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "circulation_request_duration_seconds",
			Help:    "Duration of connector calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "institution"},
	)

	PendingRequestsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pending_requests_escalated_total",
			Help: "Requests escalated by the pending-request sweep",
		},
		[]string{"bucket"},
	)

	RequestsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_purged_total",
			Help: "Records scrubbed or removed by the retention sweeps",
		},
		[]string{"kind"},
	)
)

// Outcome labels for RequestsTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
)
