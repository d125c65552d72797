package realtime

import (
	"sync"
	"time"
)

// watchdog tracks time since the last successfully processed exchange.
// Crossing the threshold fires the channel's timeout signal, whose only
// mandated consequence is telling the POS to disassociate platform-pending
// state so it can operate autonomously.
type watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	fired   chan struct{}
	stopped bool
}

func newWatchdog(timeout time.Duration) *watchdog {
	w := &watchdog{
		timeout: timeout,
		fired:   make(chan struct{}, 1),
	}
	w.timer = time.AfterFunc(timeout, w.expire)
	return w
}

func (w *watchdog) expire() {
	select {
	case w.fired <- struct{}{}:
	default:
	}
}

// Touch records a successful inbound or outbound exchange, pushing the
// deadline out again.
func (w *watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.timer.Reset(w.timeout)
}

// Expired returns the channel that fires when the deadline passes.
func (w *watchdog) Expired() <-chan struct{} {
	return w.fired
}

// Stop halts the watchdog. A stopped watchdog never fires again.
func (w *watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}
