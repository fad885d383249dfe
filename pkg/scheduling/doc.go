/*
Package scheduling groups the task scheduling primitives of intervalflow.

  - interval: repeating callbacks on a fixed period, executed by at most
    MaxWorkers goroutines

Interval Scheduler:

	sched, err := interval.NewWithConfig(interval.Config{
		Name:       "pollers",
		MaxWorkers: 4,
	})
	if err != nil {
		return err
	}
	defer func() { <-sched.Shutdown() }()

	handle, _ := sched.Schedule(time.Minute, refresh, false)
	defer handle.Cancel()

A job added with an earlier first fire time than any waiting worker holds
preempts that worker, so the pool never sleeps past a due callback.
*/
package scheduling
