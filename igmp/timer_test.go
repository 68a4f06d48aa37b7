package igmp

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	env := NewEnv(nil, nil)
	t.Cleanup(env.Close)
	return env
}

func TestDeferredTimerFires(t *testing.T) {
	env := newTestEnv(t)

	var fired atomic.Int32
	timer := NewDeferredTimer(env, func() { fired.Add(1) })

	assert.True(t, timer.FiresAt().IsZero())
	timer.Schedule(10 * time.Millisecond)
	assert.False(t, timer.FiresAt().IsZero())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, timer.FiresAt().IsZero())

	// One shot only.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDeferredTimerCancel(t *testing.T) {
	env := newTestEnv(t)

	var fired atomic.Int32
	timer := NewDeferredTimer(env, func() { fired.Add(1) })

	assert.Equal(t, TimerNotArmed, timer.Cancel())

	timer.Schedule(time.Hour)
	assert.Equal(t, TimerCancelled, timer.Cancel())
	assert.True(t, timer.FiresAt().IsZero())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDeferredTimerCancelAfterTrigger(t *testing.T) {
	env := newTestEnv(t)

	// Block the worker so the triggered callback stays queued.
	gate := make(chan struct{})
	require.True(t, env.enqueue(func() { <-gate }))

	var fired atomic.Int32
	timer := NewDeferredTimer(env, func() { fired.Add(1) })
	timer.Schedule(time.Millisecond)

	// Wait for the trigger stage to run and queue the callback.
	require.Eventually(t, func() bool { return timer.pending.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, TimerAlreadyFired, timer.Cancel())

	close(gate)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, TimerNotArmed, timer.Cancel())
}

func TestDeferredTimerCancelFlush(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{})
	var done atomic.Bool
	timer := NewDeferredTimer(env, func() {
		close(started)
		time.Sleep(30 * time.Millisecond)
		done.Store(true)
	})
	timer.Schedule(time.Millisecond)

	<-started
	timer.CancelFlush()
	// The flush must not return before the in-flight callback finished.
	assert.True(t, done.Load())
}

func TestDeferredTimerReschedule(t *testing.T) {
	env := newTestEnv(t)

	var fired atomic.Int32
	timer := NewDeferredTimer(env, func() { fired.Add(1) })

	timer.Schedule(time.Hour)
	first := timer.FiresAt()
	timer.Schedule(10 * time.Millisecond)
	assert.True(t, timer.FiresAt().Before(first))

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, time.Millisecond)
	// The superseded hour-long schedule must not fire a second time.
	assert.Equal(t, int32(1), fired.Load())
}
