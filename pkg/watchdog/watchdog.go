// Package watchdog implements the single-shot liveness timer bounding
// every session's silence window.
package watchdog

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token identifies one arm/expire cycle. Tokens are unique across all
// watchdogs in the process so a fired timer event can be matched to its
// owner by the scheduler.
type Token uint64

var tokenSeq atomic.Uint64

func nextToken() Token { return Token(tokenSeq.Add(1)) }

// Watchdog is a single-shot expiring timer keyed to a liveness deadline.
// Feed rearms it; Cancel disarms it; a disarmed watchdog never fires.
// Expiry is edge-triggered: delivered once per arm/expire cycle.
type Watchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	deadline time.Time
	armed    bool
	token    Token
	timer    *time.Timer
	fire     func(Token)
}

// New creates and arms a watchdog with the given timeout. fire, when
// non-nil, is invoked from a timer goroutine with the cycle token when the
// deadline passes without a Feed; the receiver is expected to hand the
// token to its dispatch loop rather than act on it directly.
func New(timeout time.Duration, fire func(Token)) *Watchdog {
	w := &Watchdog{timeout: timeout, fire: fire}
	w.mu.Lock()
	w.rearmLocked()
	w.mu.Unlock()
	return w
}

// Feed resets the deadline to now+timeout. A fed watchdog never fires for
// the previous cycle.
func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rearmLocked()
}

// Rearm changes the timeout and feeds. Used when a session moves from the
// connect window to the larger link window.
func (w *Watchdog) Rearm(timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = timeout
	w.rearmLocked()
}

func (w *Watchdog) rearmLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.armed = true
	w.token = nextToken()
	w.deadline = time.Now().Add(w.timeout)
	if w.fire != nil {
		tok := w.token
		w.timer = time.AfterFunc(w.timeout, func() { w.fire(tok) })
	}
}

// Cancel disarms the watchdog. No further expiry is delivered.
func (w *Watchdog) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.armed = false
}

// Expired tests whether a fired timer token corresponds to this watchdog's
// current cycle and its deadline has passed. A match consumes the cycle:
// the watchdog disarms so the expiry is observed exactly once.
func (w *Watchdog) Expired(tok Token) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || tok != w.token {
		return false
	}
	if time.Now().Before(w.deadline) {
		return false
	}
	w.armed = false
	w.timer = nil
	return true
}

// Deadline returns the current liveness deadline.
func (w *Watchdog) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deadline
}

// Armed reports whether the watchdog is currently armed.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}
