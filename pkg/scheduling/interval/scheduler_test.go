package interval

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/intervalflow/internal/testutil"
	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
	"github.com/vnykmshr/intervalflow/pkg/metrics"
)

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := NewWithConfig(cfg)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() {
		select {
		case <-s.Shutdown():
		case <-time.After(2 * time.Second):
			t.Error("workers did not exit after shutdown")
		}
	})
	return s
}

// blocker is a callback that parks until released.
type blocker struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   int32
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blocker) run() error {
	atomic.AddInt32(&b.calls, 1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

// syncBuffer lets concurrent zerolog writers share one buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantWorkers int
		wantErr     bool
	}{
		{"defaults", Config{}, DefaultMaxWorkers, false},
		{"custom workers", Config{MaxWorkers: 3}, 3, false},
		{"single worker", Config{MaxWorkers: 1}, 1, false},
		{"negative workers", Config{MaxWorkers: -1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewWithConfig(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, iferrors.ErrInvalidConfiguration) {
					t.Fatalf("expected invalid configuration, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
			defer func() { <-s.Shutdown() }()

			stats := s.Stats()
			testutil.AssertEqual(t, stats.MaxWorkers, tt.wantWorkers)
			testutil.AssertEqual(t, stats.LiveWorkers, 0)
			testutil.AssertEqual(t, s.name, DefaultName)
		})
	}
}

func TestNew_PanicsOnNegative(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	New(-1)
}

func TestSchedule_Validation(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})
	noop := func() error { return nil }

	tests := []struct {
		name     string
		interval time.Duration
		fn       Func
	}{
		{"zero interval", 0, noop},
		{"negative interval", -time.Second, noop},
		{"nil callback", time.Second, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := s.Schedule(tt.interval, tt.fn, true)
			if !iferrors.IsValidationError(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if h != nil {
				t.Error("handle should be nil on error")
			}
		})
	}

	testutil.AssertEqual(t, s.Stats().Queued, 0)
	testutil.AssertEqual(t, s.Stats().LiveWorkers, 0)
}

func TestSchedule_IntervalFidelity(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 2})
	rec := testutil.NewRecorder()
	const every = 50 * time.Millisecond

	h, err := s.Schedule(every, rec.Func(), false)
	testutil.AssertNoError(t, err)
	defer h.Cancel()

	testutil.Eventually(t, func() bool { return rec.Count() >= 4 }, 2*time.Second, 5*time.Millisecond)

	offsets := rec.Offsets()
	for i, off := range offsets[:4] {
		due := time.Duration(i+1) * every
		if off < due {
			t.Errorf("run %d at %v, before its fire time %v", i, off, due)
		}
	}
	if last := offsets[3]; last > 4*every+250*time.Millisecond {
		t.Errorf("fourth run at %v, drifted too far from %v", last, 4*every)
	}
}

func TestSchedule_RunImmediately(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})
	rec := testutil.NewRecorder()

	h, err := s.Schedule(time.Hour, rec.Func(), true)
	testutil.AssertNoError(t, err)
	defer h.Cancel()

	testutil.Eventually(t, func() bool { return rec.Count() == 1 }, time.Second, 5*time.Millisecond)
	first, _ := rec.First()
	if first > 500*time.Millisecond {
		t.Errorf("immediate job first ran at %v", first)
	}

	testutil.Never(t, func() bool { return rec.Count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	// The next run is an hour out and held by the only worker.
	stats := s.Stats()
	testutil.AssertEqual(t, stats.Held+stats.Queued, 1)
}

func TestCancel_Queued(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})

	busy := newBlocker()
	busyHandle, err := s.Schedule(time.Hour, busy.run, true)
	testutil.AssertNoError(t, err)
	waitClosed(t, busy.started, "blocker to start")

	// The only worker is busy, so this entry stays in the heap.
	rec := testutil.NewRecorder()
	h, err := s.Schedule(10*time.Millisecond, rec.Func(), true)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, s.Stats().Queued, 1)

	h.Cancel()
	testutil.AssertEqual(t, s.Stats().Queued, 0)
	testutil.AssertEqual(t, s.Stats().Canceling, 0)

	busyHandle.Cancel()
	close(busy.release)

	testutil.Never(t, func() bool { return rec.Count() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	testutil.Eventually(t, func() bool { return s.Stats().LiveWorkers == 0 }, time.Second, 5*time.Millisecond)
}

func TestCancel_HeldWaiting(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})
	rec := testutil.NewRecorder()

	h, err := s.Schedule(80*time.Millisecond, rec.Func(), false)
	testutil.AssertNoError(t, err)

	testutil.Eventually(t, func() bool { return s.Stats().Held == 1 }, time.Second, time.Millisecond)
	h.Cancel()

	testutil.Never(t, func() bool { return rec.Count() > 0 }, 200*time.Millisecond, 5*time.Millisecond)

	stats := s.Stats()
	testutil.AssertEqual(t, stats.Canceling, 0)
	testutil.AssertEqual(t, stats.Held, 0)
	testutil.AssertEqual(t, stats.LiveWorkers, 0)
}

func TestCancel_HeldReleasesWorkerPromptly(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})

	h, err := s.Schedule(time.Hour, func() error { return nil }, false)
	testutil.AssertNoError(t, err)
	testutil.Eventually(t, func() bool { return s.Stats().Held == 1 }, time.Second, time.Millisecond)

	h.Cancel()

	testutil.Eventually(t, func() bool {
		st := s.Stats()
		return st.LiveWorkers == 0 && st.Canceling == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCancel_DuringInvocation(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})
	b := newBlocker()

	h, err := s.Schedule(10*time.Millisecond, b.run, true)
	testutil.AssertNoError(t, err)
	waitClosed(t, b.started, "callback to start")

	h.Cancel()
	testutil.AssertEqual(t, s.Stats().Canceling, 1)

	close(b.release)

	testutil.Eventually(t, func() bool {
		st := s.Stats()
		return st.Canceling == 0 && st.Held == 0 && st.Queued == 0
	}, time.Second, 5*time.Millisecond)
	testutil.Never(t, func() bool { return atomic.LoadInt32(&b.calls) > 1 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestCancel_Idempotent(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})

	h, err := s.Schedule(time.Hour, func() error { return nil }, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, h.Canceled(), false)

	h.Cancel()
	h.Cancel()
	testutil.AssertEqual(t, h.Canceled(), true)

	var nilHandle *CancelHandle
	nilHandle.Cancel()
	testutil.AssertEqual(t, nilHandle.Canceled(), false)
}

func TestPreemption(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := newTestScheduler(t, Config{Name: "preempt", MaxWorkers: 1, Metrics: reg})

	late, err := s.Schedule(2*time.Second, func() error { return nil }, false)
	testutil.AssertNoError(t, err)
	defer late.Cancel()
	testutil.Eventually(t, func() bool { return s.Stats().Held == 1 }, time.Second, time.Millisecond)

	fired := make(chan time.Time, 1)
	start := time.Now()
	early, err := s.Schedule(time.Hour, func() error {
		select {
		case fired <- time.Now():
		default:
		}
		return nil
	}, true)
	testutil.AssertNoError(t, err)
	defer early.Cancel()

	select {
	case at := <-fired:
		if lag := at.Sub(start); lag > 300*time.Millisecond {
			t.Errorf("earlier job waited %v behind a sleeping worker", lag)
		}
	case <-time.After(time.Second):
		t.Fatal("earlier job did not preempt the sleeping worker")
	}

	if got := promtest.ToFloat64(reg.Preemptions.WithLabelValues("preempt")); got < 1 {
		t.Errorf("preemptions = %v, want >= 1", got)
	}
	if s.Stats().Wakeups == 0 {
		t.Error("expected at least one wake broadcast")
	}
}

func TestPreemption_FiresInOrder(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})

	var mu sync.Mutex
	var order []string
	record := func(name string) Func {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Fire times: b=40ms, c=70ms, b=80ms, a=100ms.
	var handles []*CancelHandle
	for _, j := range []struct {
		name  string
		every time.Duration
	}{{"a", 100 * time.Millisecond}, {"b", 40 * time.Millisecond}, {"c", 70 * time.Millisecond}} {
		h, err := s.Schedule(j.every, record(j.name), false)
		testutil.AssertNoError(t, err)
		handles = append(handles, h)
	}
	defer func() {
		for _, h := range handles {
			h.Cancel()
		}
	}()

	firstSeen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		seen := map[string]bool{}
		var out []string
		for _, name := range order {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		return out
	}

	testutil.Eventually(t, func() bool { return len(firstSeen()) == 3 }, 2*time.Second, 5*time.Millisecond)
	testutil.AssertEqual(t, strings.Join(firstSeen(), ","), "b,c,a")
}

func TestWorkerBound(t *testing.T) {
	const maxWorkers = 3
	s := newTestScheduler(t, Config{MaxWorkers: maxWorkers})

	var active, peak int32
	work := func() error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}

	var handles []*CancelHandle
	for i := 0; i < 30; i++ {
		h, err := s.Schedule(20*time.Millisecond, work, true)
		testutil.AssertNoError(t, err)
		handles = append(handles, h)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if live := s.Stats().LiveWorkers; live > maxWorkers {
			t.Fatalf("live workers = %d, exceeds %d", live, maxWorkers)
		}
		time.Sleep(2 * time.Millisecond)
	}

	for _, h := range handles {
		h.Cancel()
	}

	if p := atomic.LoadInt32(&peak); p > maxWorkers || p < 1 {
		t.Errorf("peak concurrency = %d, want 1..%d", p, maxWorkers)
	}
}

func TestWorkers_ExitWhenIdleAndRestart(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 2})

	h, err := s.Schedule(time.Hour, func() error { return nil }, false)
	testutil.AssertNoError(t, err)
	testutil.Eventually(t, func() bool { return s.Stats().LiveWorkers == 1 }, time.Second, time.Millisecond)

	h.Cancel()
	testutil.Eventually(t, func() bool { return s.Stats().LiveWorkers == 0 }, time.Second, 5*time.Millisecond)

	var calls int32
	h, err = s.Schedule(time.Hour, func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, true)
	testutil.AssertNoError(t, err)
	defer h.Cancel()

	testutil.WaitForInt32(t, &calls, 1, time.Second)
}

func TestFailingCallbacks(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	var logs syncBuffer
	logger := zerolog.New(&logs)
	s := newTestScheduler(t, Config{Name: "failing", MaxWorkers: 2, Logger: &logger, Metrics: reg})

	var errCalls, panicCalls int32
	h1, err := s.Schedule(20*time.Millisecond, func() error {
		atomic.AddInt32(&errCalls, 1)
		return errors.New("backend unavailable")
	}, true)
	testutil.AssertNoError(t, err)
	defer h1.Cancel()

	h2, err := s.Schedule(20*time.Millisecond, func() error {
		atomic.AddInt32(&panicCalls, 1)
		panic("boom")
	}, true)
	testutil.AssertNoError(t, err)
	defer h2.Cancel()

	// Failures do not stop the job or the worker.
	testutil.WaitForInt32(t, &errCalls, 3, 2*time.Second)
	testutil.WaitForInt32(t, &panicCalls, 3, 2*time.Second)

	if got := promtest.ToFloat64(reg.InvocationsFailed.WithLabelValues("failing", "error")); got < 3 {
		t.Errorf("error failures = %v, want >= 3", got)
	}
	if got := promtest.ToFloat64(reg.InvocationsFailed.WithLabelValues("failing", "panic")); got < 3 {
		t.Errorf("panic failures = %v, want >= 3", got)
	}

	out := logs.String()
	for _, want := range []string{"job callback failed", "backend unavailable", "boom", "\"scheduler\":\"failing\""} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestShutdown(t *testing.T) {
	s, err := NewWithConfig(Config{MaxWorkers: 2})
	testutil.AssertNoError(t, err)

	var calls int32
	_, err = s.Schedule(20*time.Millisecond, func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, true)
	testutil.AssertNoError(t, err)
	_, err = s.Schedule(time.Hour, func() error { return nil }, false)
	testutil.AssertNoError(t, err)
	testutil.WaitForInt32(t, &calls, 1, time.Second)

	first := s.Shutdown()
	second := s.Shutdown()
	if first != second {
		t.Error("Shutdown should return the same channel every time")
	}
	waitClosed(t, first, "workers to exit")

	stats := s.Stats()
	testutil.AssertEqual(t, stats.Closed, true)
	testutil.AssertEqual(t, stats.LiveWorkers, 0)
	testutil.AssertEqual(t, stats.Queued, 0)

	after := atomic.LoadInt32(&calls)
	testutil.Never(t, func() bool { return atomic.LoadInt32(&calls) != after }, 60*time.Millisecond, 5*time.Millisecond)

	h, err := s.Schedule(time.Second, func() error { return nil }, true)
	if !errors.Is(err, iferrors.ErrClosed) {
		t.Errorf("Schedule after shutdown = %v, want ErrClosed", err)
	}
	if h != nil {
		t.Error("handle should be nil after shutdown")
	}
}

func TestShutdown_WaitsForRunningCallback(t *testing.T) {
	s, err := NewWithConfig(Config{MaxWorkers: 1})
	testutil.AssertNoError(t, err)

	b := newBlocker()
	_, err = s.Schedule(10*time.Millisecond, b.run, true)
	testutil.AssertNoError(t, err)
	waitClosed(t, b.started, "callback to start")

	done := s.Shutdown()
	select {
	case <-done:
		t.Fatal("shutdown completed while a callback was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(b.release)
	waitClosed(t, done, "workers to exit")
	testutil.AssertEqual(t, atomic.LoadInt32(&b.calls), int32(1))
}

// Scaled-down walk through of two jobs sharing one worker: A every 100ms
// from t=0, B added at t=150ms, A canceled at t=250ms.
func TestScenario_SharedWorker(t *testing.T) {
	s := newTestScheduler(t, Config{MaxWorkers: 1})

	recA := testutil.NewRecorder()
	a, err := s.Schedule(100*time.Millisecond, recA.Func(), true)
	testutil.AssertNoError(t, err)

	time.Sleep(150 * time.Millisecond)
	recB := testutil.NewRecorder()
	b, err := s.Schedule(time.Second, recB.Func(), true)
	testutil.AssertNoError(t, err)
	defer b.Cancel()

	testutil.Eventually(t, func() bool { return recB.Count() == 1 }, time.Second, 2*time.Millisecond)
	if first, _ := recB.First(); first > 100*time.Millisecond {
		t.Errorf("B first ran %v after it was scheduled", first)
	}

	time.Sleep(100 * time.Millisecond)
	a.Cancel()
	// An invocation already running when Cancel returns may still record.
	time.Sleep(20 * time.Millisecond)
	countAtCancel := recA.Count()
	if countAtCancel < 2 {
		t.Errorf("A ran %d times before cancel, want >= 2", countAtCancel)
	}

	testutil.Never(t, func() bool { return recA.Count() != countAtCancel }, 250*time.Millisecond, 5*time.Millisecond)
}

func TestMetrics_Lifecycle(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s := newTestScheduler(t, Config{Name: "lifecycle", MaxWorkers: 1, Metrics: reg})

	held, err := s.Schedule(time.Hour, func() error { return nil }, false)
	testutil.AssertNoError(t, err)
	testutil.Eventually(t, func() bool { return s.Stats().Held == 1 }, time.Second, time.Millisecond)

	queued, err := s.Schedule(2*time.Hour, func() error { return nil }, false)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, promtest.ToFloat64(reg.JobsScheduled.WithLabelValues("lifecycle")), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.JobsQueued.WithLabelValues("lifecycle")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.WorkersLive.WithLabelValues("lifecycle")), 1.0)

	queued.Cancel()
	held.Cancel()

	testutil.AssertEqual(t, promtest.ToFloat64(reg.JobsCanceled.WithLabelValues("lifecycle", "queued")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.JobsCanceled.WithLabelValues("lifecycle", "held")), 1.0)

	testutil.Eventually(t, func() bool {
		return promtest.ToFloat64(reg.WorkersLive.WithLabelValues("lifecycle")) == 0
	}, time.Second, 5*time.Millisecond)
}
