// Package metrics provides Prometheus instrumentation for intervalflow components.
//
// # Quick Start
//
// Pass a Registry to the scheduler and monitor manager:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	sched, _ := interval.NewWithConfig(interval.Config{
//		Name:       "agent",
//		MaxWorkers: 8,
//		Metrics:    m,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
// ## Scheduler Metrics
//
//   - intervalflow_scheduler_jobs_scheduled_total: Jobs registered
//   - intervalflow_scheduler_jobs_canceled_total: Cancellations, by state (queued|held)
//   - intervalflow_scheduler_invocations_total: Callback invocations
//   - intervalflow_scheduler_invocations_failed_total: Failed callbacks, by reason (error|panic)
//   - intervalflow_scheduler_invocation_duration_seconds: Callback run time
//   - intervalflow_scheduler_fire_lag_seconds: Invocation delay past the fire time
//   - intervalflow_scheduler_preemptions_total: Give-way handshakes
//   - intervalflow_scheduler_workers_live: Live workers
//   - intervalflow_scheduler_jobs_queued: Pending executions in the heap
//
// ## Monitor Metrics
//
//   - intervalflow_monitor_active: Configured monitors
//   - intervalflow_monitor_datapoints_sent_total: Datapoints accepted by the sink
//   - intervalflow_monitor_collect_failures_total: Failed collections
//   - intervalflow_monitor_sink_failures_total: Batches the sink rejected
//
// A nil *Registry disables recording in every component.
package metrics
