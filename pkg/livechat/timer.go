package livechat

import (
	"sync"
	"time"
)

// Severity is the urgency tier of the remaining wait budget.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

const (
	warningThreshold  = 40
	criticalThreshold = 20
)

// CountdownTimer counts down from a fixed budget in one-second ticks and
// fires a single expiry callback when it reaches zero. Stop is idempotent
// and safe to call from any lifecycle handler. An expiry tick that has
// already won the race against Stop still delivers its callback, so owners
// gate the callback on their own state.
type CountdownTimer struct {
	mu        sync.Mutex
	total     int
	remaining int
	stopped   bool
	stop      chan struct{}

	interval time.Duration
	onTick   func(remaining int)
	onExpire func()
}

// NewCountdownTimer returns a timer over the given budget. onTick is invoked
// after every elapsed second with the seconds left, onExpire exactly once if
// the budget runs out; either may be nil.
func NewCountdownTimer(budget time.Duration, onTick func(int), onExpire func()) *CountdownTimer {
	return newCountdownTimer(budget, time.Second, onTick, onExpire)
}

func newCountdownTimer(budget, interval time.Duration, onTick func(int), onExpire func()) *CountdownTimer {
	secs := int(budget / interval)
	if secs < 1 {
		secs = 1
	}
	return &CountdownTimer{
		total:     secs,
		remaining: secs,
		stop:      make(chan struct{}),
		interval:  interval,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking on its own goroutine.
func (t *CountdownTimer) Start() {
	go t.run()
}

func (t *CountdownTimer) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			remaining, expired := t.decrement()
			if remaining < 0 {
				return
			}
			if t.onTick != nil {
				t.onTick(remaining)
			}
			if expired {
				if t.onExpire != nil {
					t.onExpire()
				}
				return
			}
		}
	}
}

// decrement returns the new remaining count and whether this tick hit zero.
// A negative remaining means the timer was stopped concurrently.
func (t *CountdownTimer) decrement() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return -1, false
	}
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.stopped = true
		return 0, true
	}
	return t.remaining, false
}

// Remaining returns the seconds left on the budget.
func (t *CountdownTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// ElapsedRatio returns the consumed share of the budget in [0, 1], for a
// progress indicator.
func (t *CountdownTimer) ElapsedRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.total-t.remaining) / float64(t.total)
}

// Severity returns the urgency tier for the current remaining time: normal
// above 40 s, warning at 40 s and below, critical at 20 s and below.
func (t *CountdownTimer) Severity() Severity {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.remaining <= criticalThreshold:
		return SeverityCritical
	case t.remaining <= warningThreshold:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

// Stop halts the countdown. Stopping an already-stopped or expired timer is
// a no-op. A tick that reached zero before Stop took the lock may still
// deliver its expiry callback after Stop returns.
func (t *CountdownTimer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	close(t.stop)
}
