// Package monitor turns configured metric collectors into interval jobs.
//
// A Manager owns one scheduled job per monitor ID. Each run collects
// datapoints, stamps them with the monitor ID, timestamp and configured
// dimensions, and hands the batch to a Sink:
//
//	m, _ := monitor.NewManager(monitor.ManagerConfig{
//		Scheduler: sched,
//		Sink:      monitor.NewLogSink(&logger),
//	})
//	m.Register("runtime", monitor.NewRuntimeCollector)
//
//	err := m.Configure(monitor.Config{ID: "go", Type: "runtime", Interval: "10s"})
//
// Reconfiguring a monitor always cancels its job and schedules a new one;
// jobs are never mutated in place. Apply reconciles the whole set against a
// new configuration list.
package monitor
