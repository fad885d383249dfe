package interval

import (
	"container/heap"
	"time"
)

// pendingExecution is the next scheduled fire of one job.
type pendingExecution struct {
	fireTime time.Time
	job      *job
	index    int // position in the heap, -1 when not queued
}

// executionHeap is a min-heap of pending executions ordered by fire time only.
// Jobs are never compared for ordering.
type executionHeap []*pendingExecution

func (h executionHeap) Len() int           { return len(h) }
func (h executionHeap) Less(i, j int) bool { return h[i].fireTime.Before(h[j].fireTime) }

func (h executionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *executionHeap) Push(x interface{}) {
	pe := x.(*pendingExecution)
	pe.index = len(*h)
	*h = append(*h, pe)
}

func (h *executionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	pe := old[n-1]
	old[n-1] = nil
	pe.index = -1
	*h = old[0 : n-1]
	return pe
}

// heapStore wraps executionHeap with the operations the scheduler needs.
// All methods assume the scheduler lock is held.
type heapStore struct {
	items executionHeap
}

// push inserts pe and reports whether it became the earliest queued entry.
func (s *heapStore) push(pe *pendingExecution) bool {
	earliest := true
	if next, ok := s.peek(); ok {
		earliest = pe.fireTime.Before(next.fireTime)
	}
	heap.Push(&s.items, pe)
	return earliest
}

// pop removes and returns the earliest entry.
func (s *heapStore) pop() (*pendingExecution, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return heap.Pop(&s.items).(*pendingExecution), true
}

func (s *heapStore) peek() (*pendingExecution, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[0], true
}

// nextScheduled returns the fire time of the earliest queued entry, or the
// zero time when the heap is empty.
func (s *heapStore) nextScheduled() time.Time {
	if next, ok := s.peek(); ok {
		return next.fireTime
	}
	return time.Time{}
}

// remove deletes the entry belonging to j. A job has at most one entry.
func (s *heapStore) remove(j *job) bool {
	for _, pe := range s.items {
		if pe.job == j {
			heap.Remove(&s.items, pe.index)
			return true
		}
	}
	return false
}

func (s *heapStore) len() int {
	return len(s.items)
}

func (s *heapStore) reset() {
	for _, pe := range s.items {
		pe.index = -1
	}
	s.items = nil
}
