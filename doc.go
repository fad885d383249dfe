/*
Package intervalflow runs callbacks on fixed intervals with a bounded pool of
workers, and builds a metric monitoring agent on top of it.

Scheduling (pkg/scheduling):
  - interval: min-heap interval scheduler with preemption and cancellation

Monitoring (pkg/monitor):
  - Manager: one scheduled job per configured monitor, hot reconfiguration
  - Sinks: structured log output and Redis pub/sub

Shared (pkg/common, pkg/metrics):
  - errors: ValidationError, OperationError and sentinel errors
  - validation: argument checks used by constructors
  - metrics: Prometheus collectors for schedulers and monitors

Example usage:

	import "github.com/vnykmshr/intervalflow/pkg/scheduling/interval"

	sched := interval.New(4)
	defer func() { <-sched.Shutdown() }()

	handle, err := sched.Schedule(10*time.Second, func() error {
		return poll()
	}, true)
	if err != nil {
		return err
	}
	defer handle.Cancel()

The intervald command (cmd/intervald) runs monitors from a YAML file and
serves Prometheus metrics.
*/
package intervalflow
