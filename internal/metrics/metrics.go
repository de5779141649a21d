package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueuedTotal counts job ids accepted into the in-process queue.
	JobsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of job ids enqueued for dispatch.",
		},
	)

	// DispatchAttemptsTotal counts individual RPC delivery attempts by outcome.
	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Total number of worker RPC delivery attempts.",
		},
		[]string{"outcome"}, // success / transport_error / logical_failure / error
	)

	// JobsFinishedTotal counts jobs reaching a terminal state.
	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state.",
		},
		[]string{"status"}, // completed / failed
	)

	// WorkerProcessTotal counts worker-side Process calls by result status.
	WorkerProcessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_process_total",
			Help: "Total number of Process calls handled by the worker.",
		},
		[]string{"status"},
	)
)
