package igmp

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullLink is the minimal Link used by package-internal tests.
type nullLink struct{}

func (nullLink) Up() bool                      { return true }
func (nullLink) MTU() int                      { return 1500 }
func (nullLink) LocalAddr() netip.Addr         { return netip.AddrFrom4([4]byte{10, 0, 0, 2}) }
func (nullLink) Contains(netip.Addr) bool      { return true }
func (nullLink) Send(netip.Addr, []byte) error { return nil }

func TestRegistryCreateOrLookup(t *testing.T) {
	env := newTestEnv(t)
	reg := newLinkRegistry()

	l := reg.createOrLookup(env, 1, nullLink{}, LinkConfig{})
	require.NotNil(t, l)
	assert.Equal(t, int32(2), l.refs.Load(), "registry and caller each hold a reference")

	again := reg.createOrLookup(env, 1, nullLink{}, LinkConfig{})
	assert.Same(t, l, again)
	assert.Equal(t, int32(3), l.refs.Load())

	other := reg.createOrLookup(env, 2, nullLink{}, LinkConfig{})
	assert.NotSame(t, l, other)

	again.release()
	l.release()
	other.release()

	// All outside holders are gone; the entries must be unlinked.
	assert.Nil(t, reg.lookup(1))
	assert.Nil(t, reg.lookup(2))
}

func TestRegistryLookupMiss(t *testing.T) {
	reg := newLinkRegistry()
	assert.Nil(t, reg.lookup(7))
}

func TestRegistryLookupKeepsEntryAlive(t *testing.T) {
	env := newTestEnv(t)
	reg := newLinkRegistry()

	l := reg.createOrLookup(env, 1, nullLink{}, LinkConfig{})
	held := reg.lookup(1)
	require.Same(t, l, held)

	// Dropping the creator's reference must not destroy the state while
	// the lookup still holds it.
	l.release()
	again := reg.lookup(1)
	assert.Same(t, held, again)
	again.release()

	held.release()
	assert.Nil(t, reg.lookup(1))
}

func TestReleaseOnWorkerWithQueuedCallback(t *testing.T) {
	env := newTestEnv(t)
	reg := newLinkRegistry()
	l := reg.createOrLookup(env, 1, nullLink{}, LinkConfig{})

	// Hold the worker so everything below queues up behind it.
	gate := make(chan struct{})
	require.True(t, env.enqueue(func() { <-gate }))

	// The final reference drop happens on the worker itself, the way a
	// last leave retransmission releases its link reference.
	released := make(chan struct{})
	require.True(t, env.enqueue(func() {
		l.release()
		close(released)
	}))

	// Arm the link report timer and let it trigger, so its callback sits
	// in the queue behind the release. Destroying the link state must not
	// wait for that callback: the worker would be waiting on itself.
	l.reportTimer.Schedule(time.Millisecond)
	require.Eventually(t, func() bool { return l.reportTimer.pending.Load() == 1 }, 2*time.Second, time.Millisecond)

	close(gate)
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stuck destroying the link state")
	}
	require.Eventually(t, func() bool { return l.reportTimer.pending.Load() == 0 }, 2*time.Second, time.Millisecond)
	assert.Nil(t, reg.lookup(1))
	assert.Equal(t, int32(0), l.refs.Load())
}

func TestRegistryConcurrentCreate(t *testing.T) {
	env := newTestEnv(t)
	reg := newLinkRegistry()

	const workers = 16
	results := make([]*linkState, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = reg.createOrLookup(env, 42, nullLink{}, LinkConfig{})
		}()
	}
	wg.Wait()

	// Exactly one state must have won; losing candidates are discarded.
	for _, l := range results {
		require.Same(t, results[0], l)
	}
	assert.Equal(t, int32(workers+1), results[0].refs.Load())

	for _, l := range results {
		l.release()
	}
	assert.Nil(t, reg.lookup(42))
}
