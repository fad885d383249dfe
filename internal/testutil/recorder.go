package testutil

import (
	"sync"
	"time"
)

// Recorder collects the wall-clock times at which a callback ran.
// It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	start time.Time
	hits  []time.Duration
}

// NewRecorder creates a Recorder whose offsets are relative to now.
func NewRecorder() *Recorder {
	return &Recorder{start: time.Now()}
}

// Hit records one invocation at the current time.
func (r *Recorder) Hit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, time.Since(r.start))
}

// Func returns a callback that records a hit and returns nil.
func (r *Recorder) Func() func() error {
	return func() error {
		r.Hit()
		return nil
	}
}

// Count returns the number of recorded hits.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

// Offsets returns a copy of the recorded offsets since the Recorder was created.
func (r *Recorder) Offsets() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.hits))
	copy(out, r.hits)
	return out
}

// First returns the first recorded offset and whether there was one.
func (r *Recorder) First() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hits) == 0 {
		return 0, false
	}
	return r.hits[0], true
}

// Last returns the last recorded offset and whether there was one.
func (r *Recorder) Last() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hits) == 0 {
		return 0, false
	}
	return r.hits[len(r.hits)-1], true
}
