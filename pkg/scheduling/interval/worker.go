package interval

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
)

type waitResult int

const (
	waitFire     waitResult = iota // fire time reached
	waitGaveWay                    // requeued for an earlier entry
	waitCanceled                   // job was canceled while waiting
	waitShutdown                   // scheduler closed
)

// runWorker is the drain loop. The worker exits when it finds the heap empty
// or the scheduler closed; Schedule starts a fresh one when work arrives.
func (s *Scheduler) runWorker(id int) {
	defer s.workers.Done()

	log := s.log.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		s.mu.Lock()
		if s.closed {
			s.retireLocked()
			s.mu.Unlock()
			log.Debug().Msg("worker stopping on shutdown")
			return
		}
		pe, ok := s.heap.pop()
		if !ok {
			s.retireLocked()
			s.mu.Unlock()
			log.Debug().Msg("nothing for worker to do, stopping")
			return
		}
		s.holdLocked(pe)
		s.recordGaugesLocked()
		s.mu.Unlock()

		switch s.await(pe, log) {
		case waitGaveWay, waitCanceled:
			continue
		case waitShutdown:
			s.mu.Lock()
			s.releaseLocked(pe)
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.closed || s.canceled.consume(pe.job) {
			s.releaseLocked(pe)
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		s.invoke(pe, log)

		s.mu.Lock()
		s.releaseLocked(pe)
		if !s.closed && !s.canceled.consume(pe.job) {
			s.enqueueLocked(&pendingExecution{
				fireTime: pe.fireTime.Add(pe.job.interval),
				job:      pe.job,
				index:    -1,
			})
		}
		s.mu.Unlock()
	}
}

// await blocks until pe is due, unless the scheduler closes, the job is
// canceled, or an earlier entry shows up in the heap. In the last case pe is
// pushed back so this worker can pop the earlier one.
func (s *Scheduler) await(pe *pendingExecution, log zerolog.Logger) waitResult {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return waitShutdown
		}
		if s.canceled.consume(pe.job) {
			s.releaseLocked(pe)
			s.mu.Unlock()
			log.Debug().Uint64("job", pe.job.id).Msg("dropping canceled job")
			return waitCanceled
		}
		if next, ok := s.heap.peek(); ok && next.fireTime.Before(pe.fireTime) {
			s.releaseLocked(pe)
			s.enqueueLocked(pe)
			s.mu.Unlock()
			log.Debug().
				Uint64("job", pe.job.id).
				Uint64("earlier_job", next.job.id).
				Msg("giving way to earlier job")
			if s.metrics != nil {
				s.metrics.Preemptions.WithLabelValues(s.name).Inc()
			}
			return waitGaveWay
		}

		wait := time.Until(pe.fireTime)
		if wait <= 0 {
			s.mu.Unlock()
			return waitFire
		}
		wake := s.wake.channel()
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// invoke runs the callback, recovering panics. Failures are logged and
// counted; they never stop the worker.
func (s *Scheduler) invoke(pe *pendingExecution, log zerolog.Logger) {
	start := time.Now()
	err := call(pe.job.fn)
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.FireLag.WithLabelValues(s.name).Observe(start.Sub(pe.fireTime).Seconds())
		s.metrics.InvocationDuration.WithLabelValues(s.name).Observe(duration.Seconds())
		s.metrics.Invocations.WithLabelValues(s.name).Inc()
	}

	if err == nil {
		return
	}

	reason := "error"
	if errors.Is(err, iferrors.ErrPanic) {
		reason = "panic"
	}
	log.Error().
		Err(err).
		Uint64("job", pe.job.id).
		Str("reason", reason).
		Dur("duration", duration).
		Msg("job callback failed")
	if s.metrics != nil {
		s.metrics.InvocationsFailed.WithLabelValues(s.name, reason).Inc()
	}
}

func call(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\nStack trace:\n%s", iferrors.ErrPanic, r, debug.Stack())
		}
	}()
	return fn()
}

func (s *Scheduler) holdLocked(pe *pendingExecution) {
	pe.job.held = true
	s.held++
}

// releaseLocked ends a worker's hold on pe. Safe to call twice.
func (s *Scheduler) releaseLocked(pe *pendingExecution) {
	if !pe.job.held {
		return
	}
	pe.job.held = false
	s.held--
}

func (s *Scheduler) retireLocked() {
	s.live--
	s.recordGaugesLocked()
}
