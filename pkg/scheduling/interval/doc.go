/*
Package interval runs a dynamic set of jobs, each on its own fixed interval,
on a bounded pool of worker goroutines.

Basic usage:

	sched := interval.New(4)
	defer func() { <-sched.Shutdown() }()

	handle, err := sched.Schedule(10*time.Second, func() error {
		return collect()
	}, true)
	if err != nil {
		return err
	}

	// Later, when the job is removed or reconfigured:
	handle.Cancel()

How it works:

Pending executions live in a min-heap keyed by fire time and guarded by a
single mutex. Workers are started lazily, up to MaxWorkers, whenever queued
work outnumbers live workers. Each worker pops the earliest entry and waits
for its fire time. When an insertion becomes the new earliest entry, every
waiting worker is woken; a worker holding a later entry pushes it back and
pops again, so an earlier job never waits behind a sleeping worker. A worker
exits when it finds the heap empty.

After each invocation the job is pushed back at fire time plus interval, so
a slow callback delays only its own next run.

Cancellation:

Cancel removes a queued job synchronously. If a worker already holds the
job, the job is recorded in a cancellation registry and the worker drops it
before the next invocation; a callback that is already running finishes but
is not rescheduled.

Errors:

A callback error or panic is logged and counted; the job runs again at its
next interval. Schedule returns a *errors.ValidationError for a non-positive
interval or nil callback and errors.ErrClosed after Shutdown.

Lifecycle:

Shutdown is idempotent and does not block. The returned channel closes once
every worker has exited:

	select {
	case <-sched.Shutdown():
	case <-time.After(grace):
	}
*/
package interval
