package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsStarted is a counter for flows whose record was persisted.
	FlowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authflow_flows_started_total",
			Help: "The total number of authorization flows started.",
		},
	)

	// FlowsFailed is a counter for flow initiations that aborted, by stage.
	FlowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_flows_failed_total",
			Help: "The total number of authorization flow initiations that failed.",
		},
		[]string{"stage"},
	)

	// FlowInitiationDuration is a histogram of the time it takes to start a flow.
	FlowInitiationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authflow_flow_initiation_duration_seconds",
			Help:    "A histogram of the flow initiation duration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		},
	)

	// CallbacksCompleted is a counter for authorization callbacks, by outcome.
	CallbacksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_callbacks_total",
			Help: "The total number of authorization callbacks handled.",
		},
		[]string{"outcome"},
	)

	// RecordsSwept is a counter for expired entries removed by the sweeper, by store.
	RecordsSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_records_swept_total",
			Help: "The total number of expired entries deleted by the sweeper.",
		},
		[]string{"store"},
	)

	// SweepsFailed is a counter for sweep attempts that returned an error, by store.
	SweepsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_sweeps_failed_total",
			Help: "The total number of sweep attempts that failed.",
		},
		[]string{"store"},
	)

	// TasksDeadLettered is a counter for worker tasks that exhausted their retries.
	TasksDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authflow_worker_tasks_dead_lettered_total",
			Help: "The total number of worker tasks moved to the dead letter queue.",
		},
	)
)
