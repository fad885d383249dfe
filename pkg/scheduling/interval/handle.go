package interval

import "sync/atomic"

// CancelHandle stops one scheduled job. Cancel is idempotent and safe for
// concurrent use.
type CancelHandle struct {
	scheduler *Scheduler
	job       *job
	called    atomic.Bool
}

// Cancel stops the job. A job waiting in the queue never fires again. A job
// already held by a worker is dropped before its next invocation; an
// invocation in progress completes but is not rescheduled.
func (h *CancelHandle) Cancel() {
	if h == nil || !h.called.CompareAndSwap(false, true) {
		return
	}
	h.scheduler.cancel(h.job)
}

// Canceled reports whether Cancel has been called.
func (h *CancelHandle) Canceled() bool {
	return h != nil && h.called.Load()
}
