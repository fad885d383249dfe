package interval

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
	"github.com/vnykmshr/intervalflow/pkg/common/validation"
	"github.com/vnykmshr/intervalflow/pkg/metrics"
)

const (
	// DefaultMaxWorkers is used when Config.MaxWorkers is zero.
	DefaultMaxWorkers = 5

	// DefaultName labels logs and metrics when Config.Name is empty.
	DefaultName = "default"
)

// Func is a job callback. It takes no arguments; a returned error (or a
// panic) is logged and the job runs again at its next interval.
type Func func() error

// Config holds scheduler configuration.
type Config struct {
	// Name identifies the scheduler in logs and metrics.
	Name string

	// MaxWorkers bounds the number of worker goroutines (default: 5).
	MaxWorkers int

	// Logger receives worker lifecycle and callback failure logs.
	// Nil disables logging.
	Logger *zerolog.Logger

	// Metrics records scheduler metrics. Nil disables recording.
	Metrics *metrics.Registry
}

// Stats is a point-in-time view of the scheduler state.
type Stats struct {
	Queued      int       // pending executions in the heap
	Held        int       // executions popped by a worker and not yet rescheduled
	LiveWorkers int       // running worker goroutines
	MaxWorkers  int       // configured upper bound
	Canceling   int       // held jobs canceled but not yet dropped
	NextFire    time.Time // earliest queued fire time, zero when nothing is queued
	Wakeups     uint64    // wake broadcasts sent to waiting workers
	Closed      bool
}

// job is one registered (interval, callback) pair. Its pointer is its identity.
type job struct {
	id       uint64
	fn       Func
	interval time.Duration
	held     bool // guarded by Scheduler.mu
}

// Scheduler runs a dynamic set of jobs, each on its own interval, using at
// most MaxWorkers goroutines.
type Scheduler struct {
	name       string
	maxWorkers int
	log        zerolog.Logger
	metrics    *metrics.Registry

	mu       sync.Mutex
	heap     heapStore
	wake     *wakeSignal
	canceled *cancelRegistry
	held     int
	live     int
	closed   bool

	nextJob    atomic.Uint64
	nextWorker int

	workers      sync.WaitGroup
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a scheduler bounded to maxWorkers goroutines.
// It panics if maxWorkers is negative.
func New(maxWorkers int) *Scheduler {
	s, err := NewWithConfig(Config{MaxWorkers: maxWorkers})
	if err != nil {
		panic(err)
	}
	return s
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (*Scheduler, error) {
	if err := validation.ValidateNonNegative("interval", "max_workers", cfg.MaxWorkers); err != nil {
		return nil, err
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = DefaultMaxWorkers
	}

	name := cfg.Name
	if name == "" {
		name = DefaultName
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("scheduler", name).Logger()
	}

	return &Scheduler{
		name:       name,
		maxWorkers: maxWorkers,
		log:        log,
		metrics:    cfg.Metrics,
		wake:       newWakeSignal(),
		canceled:   newCancelRegistry(),
		done:       make(chan struct{}),
	}, nil
}

// Schedule registers fn to run every interval. When runImmediately is true
// the first run is due now, otherwise after one interval. The returned
// handle stops the job.
func (s *Scheduler) Schedule(interval time.Duration, fn Func, runImmediately bool) (*CancelHandle, error) {
	if err := validation.ValidatePositiveDuration("interval", "interval", interval); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, iferrors.NewValidationError("interval", "callback", nil, "cannot be nil").
			WithHint("provide a job callback")
	}

	fireTime := time.Now()
	if !runImmediately {
		fireTime = fireTime.Add(interval)
	}

	j := &job{
		id:       s.nextJob.Add(1),
		fn:       fn,
		interval: interval,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, iferrors.ErrClosed
	}
	s.enqueueLocked(&pendingExecution{fireTime: fireTime, job: j, index: -1})
	s.mu.Unlock()

	s.log.Debug().
		Uint64("job", j.id).
		Dur("interval", interval).
		Bool("immediate", runImmediately).
		Msg("job scheduled")
	if s.metrics != nil {
		s.metrics.JobsScheduled.WithLabelValues(s.name).Inc()
	}

	return &CancelHandle{scheduler: s, job: j}, nil
}

// Shutdown stops the scheduler. It does not wait for workers; the returned
// channel is closed once every worker has exited. Calling Shutdown again
// returns the same channel.
func (s *Scheduler) Shutdown() <-chan struct{} {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.heap.reset()
		s.wake.broadcast()
		s.recordGaugesLocked()
		s.mu.Unlock()

		s.log.Debug().Msg("scheduler shutting down")

		go func() {
			s.workers.Wait()
			close(s.done)
		}()
	})
	return s.done
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Queued:      s.heap.len(),
		Held:        s.held,
		LiveWorkers: s.live,
		MaxWorkers:  s.maxWorkers,
		Canceling:   s.canceled.len(),
		NextFire:    s.heap.nextScheduled(),
		Wakeups:     s.wake.generation,
		Closed:      s.closed,
	}
}

// enqueueLocked inserts pe, wakes waiting workers when pe is the new earliest
// entry and starts a worker when queued work outnumbers live workers.
func (s *Scheduler) enqueueLocked(pe *pendingExecution) {
	if s.heap.push(pe) {
		s.wake.broadcast()
	}
	if s.heap.len()+s.held > s.live && s.live < s.maxWorkers {
		s.spawnLocked()
	}
	s.recordGaugesLocked()
}

func (s *Scheduler) spawnLocked() {
	s.live++
	s.nextWorker++
	s.workers.Add(1)
	go s.runWorker(s.nextWorker)
}

// cancel removes j from the heap, or marks it for the worker holding it.
func (s *Scheduler) cancel(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.heap.remove(j):
		s.recordGaugesLocked()
		s.recordCancel("queued")
		s.log.Debug().Uint64("job", j.id).Msg("job canceled from heap")
	case j.held:
		s.canceled.add(j)
		// Release a worker waiting on this job's fire time.
		s.wake.broadcast()
		s.recordCancel("held")
		s.log.Debug().Uint64("job", j.id).Msg("job canceled while held by a worker")
	default:
		s.log.Debug().Uint64("job", j.id).Msg("job to cancel not found")
	}
}

func (s *Scheduler) recordCancel(state string) {
	if s.metrics != nil {
		s.metrics.JobsCanceled.WithLabelValues(s.name, state).Inc()
	}
}

func (s *Scheduler) recordGaugesLocked() {
	if s.metrics != nil {
		s.metrics.JobsQueued.WithLabelValues(s.name).Set(float64(s.heap.len()))
		s.metrics.WorkersLive.WithLabelValues(s.name).Set(float64(s.live))
	}
}
