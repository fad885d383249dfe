package interval

// wakeSignal is a payload-free broadcast. Waiters take the current channel
// under the scheduler lock and block on it; broadcast closes that channel and
// installs a fresh one, so every waiter that snapshotted before the broadcast
// is released exactly once and later waiters are unaffected.
type wakeSignal struct {
	ch         chan struct{}
	generation uint64
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{})}
}

// channel returns the channel closed by the next broadcast.
func (w *wakeSignal) channel() <-chan struct{} {
	return w.ch
}

func (w *wakeSignal) broadcast() {
	close(w.ch)
	w.ch = make(chan struct{})
	w.generation++
}
