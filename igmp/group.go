package igmp

import (
	"net/netip"
	"sync/atomic"
)

// group tracks membership of one multicast address on one link. It is
// owned by the link's group list while joinCount > 0 and kept alive by
// the pending leave sequence afterwards. All fields except the
// reference count are guarded by the owning link's mutex.
type group struct {
	addr netip.Addr

	// link is the owning link state; the group holds one reference to
	// it for its whole lifetime.
	link *linkState

	refs atomic.Int32

	// timer delays and retries report and leave transmissions.
	timer *DeferredTimer

	// joinCount is the number of outstanding local joins. The group is
	// linked into the link's list iff it is positive.
	joinCount int

	// sendCount is the number of transmissions left in the current
	// report or leave sequence; never above the robustness variable.
	sendCount uint8

	// stateChange marks the next transmission as a change-of-state
	// record rather than a current-state report.
	stateChange bool

	// lastReporter is set while this host sent the most recent report
	// for the group; cleared when another host's report is heard.
	lastReporter bool

	// leaveSent records that at least one leave message went out.
	leaveSent bool
}

// newGroup allocates a group holding the caller's link reference.
func newGroup(l *linkState, addr netip.Addr) *group {
	g := &group{
		addr: addr,
		link: l,
	}
	g.timer = NewDeferredTimer(l.env, g.timerFired)
	g.refs.Store(1)
	return g
}

func (g *group) incRef() {
	g.refs.Add(1)
}

// tryIncRef takes a reference only if the group is still alive. Timer
// callbacks use it because they hold no reference of their own.
func (g *group) tryIncRef() bool {
	for {
		n := g.refs.Load()
		if n == 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *group) release() {
	if g.refs.Add(-1) == 0 {
		g.destroy()
	}
}

// destroy runs when the last reference drops. It may execute inside
// the group's own timer callback, so it must not flush the timer; by
// the time the count reaches zero no further schedule can exist.
func (g *group) destroy() {
	g.timer.Cancel()
	g.link.env.Log.Debug("group destroyed", "link", g.link.id, "group", g.addr)
	g.link.release()
}

// timerFired drives the pending transmission for the group: a report
// while it is still joined, the leave sequence once it is not.
func (g *group) timerFired() {
	if !g.tryIncRef() {
		return
	}
	defer g.release()

	g.link.mu.Lock()
	leaving := g.joinCount == 0
	g.link.mu.Unlock()

	if leaving {
		g.sendLeave()
	} else {
		g.sendReport()
	}
}
