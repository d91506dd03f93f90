package bus

import (
	"sync"

	"golang.org/x/time/rate"
)

// ThrottleMode selects the rate-limit behavior the bus applies per
// (topic, subscriber).
type ThrottleMode int

const (
	// ThrottleUnbounded delivers every event with no rate limiting.
	ThrottleUnbounded ThrottleMode = iota
	// ThrottleTailDrop silently drops events once the per-second budget
	// is exhausted, preserving delivery order for what does get through.
	ThrottleTailDrop
	// ThrottleCoalesceLatest keeps only the most recent undelivered event
	// per tick, discarding intermediate values.
	ThrottleCoalesceLatest
)

// ThrottleConfig configures a per-(topic,subscriber) throttle.
type ThrottleConfig struct {
	Mode ThrottleMode
	// PerSecond is the sustained delivery rate for TailDrop and
	// CoalesceLatest modes. Ignored for Unbounded.
	PerSecond int
}

// throttle wraps a rate.Limiter with the subscriber's chosen mode and,
// for coalesce-latest, a single-slot mailbox holding the most recent
// pending event.
type throttle struct {
	mode    ThrottleMode
	limiter *rate.Limiter

	mu      sync.Mutex
	pending *Event
	has     bool
}

func newThrottle(cfg ThrottleConfig) *throttle {
	t := &throttle{mode: cfg.Mode}
	if cfg.Mode != ThrottleUnbounded {
		n := cfg.PerSecond
		if n <= 0 {
			n = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(n), n)
	}
	return t
}

// admit decides whether ev should be delivered now under tail-drop, or
// replaces the coalesced mailbox and reports whether a fresh delivery
// goroutine needs to be woken (only relevant for coalesce mode, handled
// by the caller's dispatch loop).
func (t *throttle) admit(ev *Event) (deliver *Event, ok bool) {
	switch t.mode {
	case ThrottleUnbounded:
		return ev, true
	case ThrottleTailDrop:
		if t.limiter.Allow() {
			return ev, true
		}
		return nil, false
	case ThrottleCoalesceLatest:
		t.mu.Lock()
		t.pending = ev
		t.has = true
		t.mu.Unlock()
		if t.limiter.Allow() {
			t.mu.Lock()
			latest := t.pending
			t.has = false
			t.pending = nil
			t.mu.Unlock()
			if latest != nil {
				return latest, true
			}
		}
		return nil, false
	default:
		return ev, true
	}
}
