// Package metrics provides Prometheus instrumentation for intervalflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "intervalflow"

// Registry holds all metric instances for intervalflow components.
type Registry struct {
	// Scheduler Metrics
	JobsScheduled      *prometheus.CounterVec
	JobsCanceled       *prometheus.CounterVec
	Invocations        *prometheus.CounterVec
	InvocationsFailed  *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	FireLag            *prometheus.HistogramVec
	Preemptions        *prometheus.CounterVec
	WorkersLive        *prometheus.GaugeVec
	JobsQueued         *prometheus.GaugeVec

	// Monitor Metrics
	MonitorsActive  *prometheus.GaugeVec
	DatapointsSent  *prometheus.CounterVec
	CollectFailures *prometheus.CounterVec
	SinkFailures    *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by intervalflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		// Scheduler Metrics
		JobsScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_scheduled_total",
				Help:      "Total number of jobs registered with the scheduler",
			},
			[]string{"scheduler_name"},
		),

		JobsCanceled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_canceled_total",
				Help:      "Total number of job cancellations by where the job was found",
			},
			[]string{"scheduler_name", "state"},
		),

		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "invocations_total",
				Help:      "Total number of job callback invocations",
			},
			[]string{"scheduler_name"},
		),

		InvocationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "invocations_failed_total",
				Help:      "Total number of job callbacks that returned an error or panicked",
			},
			[]string{"scheduler_name", "reason"},
		),

		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "invocation_duration_seconds",
				Help:      "Time spent executing job callbacks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheduler_name"},
		),

		FireLag: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "fire_lag_seconds",
				Help:      "Delay between a job's scheduled fire time and its invocation",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"scheduler_name"},
		),

		Preemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "preemptions_total",
				Help:      "Total number of times a waiting worker gave way to an earlier job",
			},
			[]string{"scheduler_name"},
		),

		WorkersLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "workers_live",
				Help:      "Number of live worker goroutines",
			},
			[]string{"scheduler_name"},
		),

		JobsQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "jobs_queued",
				Help:      "Number of pending executions waiting in the heap",
			},
			[]string{"scheduler_name"},
		),

		// Monitor Metrics
		MonitorsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "active",
				Help:      "Number of configured monitors",
			},
			[]string{"manager_name"},
		),

		DatapointsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "datapoints_sent_total",
				Help:      "Total number of datapoints handed to the sink",
			},
			[]string{"monitor_type"},
		),

		CollectFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "collect_failures_total",
				Help:      "Total number of failed collections",
			},
			[]string{"monitor_type"},
		),

		SinkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitor",
				Name:      "sink_failures_total",
				Help:      "Total number of datapoint batches the sink rejected",
			},
			[]string{"monitor_type"},
		),
	}
}
