package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionActivityRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reev_submission_activity_runs_total",
			Help: "Submission activity handler runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	clinvarRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reev_clinvar_request_duration_seconds",
			Help:    "Latency of ClinVar submission API calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"operation", "result"},
	)

	submissionTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reev_submission_tasks_total",
			Help: "Submission queue tasks handled by the worker pool",
		},
		[]string{"result"},
	)
)

func observeClinVarRequest(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	clinvarRequestDuration.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}
