package igmp

import (
	"sync"
	"sync/atomic"
	"time"
)

// CancelResult describes the outcome of a timer cancellation attempt.
type CancelResult int

const (
	// TimerCancelled means the callback was stopped before it ran.
	TimerCancelled CancelResult = iota

	// TimerAlreadyFired means the trigger won the race; the callback is
	// queued or running and will still be invoked.
	TimerAlreadyFired

	// TimerNotArmed means there was nothing to cancel.
	TimerNotArmed
)

// DeferredTimer pairs a cancellable timer with a two-stage dispatch:
// the trigger stage only enqueues the callback onto the environment's
// work queue, where it runs with ordinary goroutine semantics. Every
// delay in the engine goes through one of these.
type DeferredTimer struct {
	env *Env
	fn  func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	armed   bool
	firesAt time.Time

	pending  atomic.Int32
	inflight sync.WaitGroup
}

// NewDeferredTimer returns an unarmed timer that will run fn on the
// environment's work queue when it fires.
func NewDeferredTimer(env *Env, fn func()) *DeferredTimer {
	return &DeferredTimer{env: env, fn: fn}
}

// Schedule arms the timer to fire after d, replacing any earlier
// schedule that has not yet triggered.
func (t *DeferredTimer) Schedule(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.armed = true
	t.firesAt = time.Now().Add(d)
	t.timer = time.AfterFunc(d, func() { t.trigger(gen) })
}

// FiresAt returns the due time of the armed schedule, or the zero time
// if the timer is not armed.
func (t *DeferredTimer) FiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return time.Time{}
	}
	return t.firesAt
}

func (t *DeferredTimer) trigger(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		// Cancelled or rescheduled between firing and locking.
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.firesAt = time.Time{}
	t.pending.Add(1)
	t.inflight.Add(1)
	t.mu.Unlock()

	if !t.env.enqueue(t.run) {
		t.pending.Add(-1)
		t.inflight.Done()
	}
}

func (t *DeferredTimer) run() {
	defer func() {
		t.pending.Add(-1)
		t.inflight.Done()
	}()
	t.fn()
}

// Cancel attempts to stop the timer without blocking. A result of
// TimerAlreadyFired means the callback can no longer be stopped and the
// caller must tolerate it running.
func (t *DeferredTimer) Cancel() CancelResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		t.gen++
		t.timer.Stop()
		t.armed = false
		t.firesAt = time.Time{}
		return TimerCancelled
	}
	if t.pending.Load() > 0 {
		return TimerAlreadyFired
	}
	return TimerNotArmed
}

// CancelFlush cancels the timer and then waits for any callback that
// already triggered to finish. It must not be called while holding a
// lock the callback may take.
func (t *DeferredTimer) CancelFlush() {
	t.Cancel()
	t.inflight.Wait()
}
