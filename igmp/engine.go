package igmp

import (
	"errors"
	"log/slog"
	"math/rand"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNoResources is returned when the engine cannot set up the
	// state a join requires.
	ErrNoResources = errors.New("igmp: no resources")

	// ErrBadAddress is returned by Leave when the link or group has no
	// matching join.
	ErrBadAddress = errors.New("igmp: address not joined")
)

// Options configures an Engine.
type Options struct {
	Log *slog.Logger

	// Rand is the source used for report delays. Defaults to a
	// time-seeded source.
	Rand *rand.Rand
}

// Engine is the host-side IGMP engine. It tracks group membership per
// link, answers membership queries, and keeps each link in the oldest
// protocol version its routers require. It performs host-mode
// membership reporting only; router behavior is out of scope.
type Engine struct {
	env *Env
	reg *linkRegistry

	mu          sync.Mutex
	linkConfigs map[LinkID]LinkConfig

	closed atomic.Bool
}

// New returns a started engine. Close must be called to stop it.
func New(opts Options) *Engine {
	return &Engine{
		env:         NewEnv(opts.Log, opts.Rand),
		reg:         newLinkRegistry(),
		linkConfigs: make(map[LinkID]LinkConfig),
	}
}

// Close stops the engine's deferred work. Pending timer callbacks are
// drained; joins still held simply stop being reported.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.env.Close()
}

// ConfigureLink sets protocol parameter overrides applied when state
// for the link is next created. It has no effect on an existing link
// state.
func (e *Engine) ConfigureLink(id LinkID, cfg LinkConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linkConfigs[id] = cfg
}

func (e *Engine) linkConfig(id LinkID) LinkConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linkConfigs[id]
}

// Join adds a local membership for the group on the given link,
// creating link state on first use. The first join of a group sends an
// unsolicited report immediately and schedules its retransmissions;
// further joins only count.
func (e *Engine) Join(id LinkID, link Link, groupAddr netip.Addr) error {
	// The all-systems group is never reported and never tracked.
	if groupAddr == AllSystems {
		return nil
	}
	if e.closed.Load() {
		return ErrNoResources
	}

	l := e.reg.createOrLookup(e.env, id, link, e.linkConfig(id))

	l.mu.Lock()
	if g := l.findGroupLocked(groupAddr); g != nil {
		g.joinCount++
		l.mu.Unlock()
		l.release()
		return nil
	}
	l.mu.Unlock()

	// Allocate outside the lock, then re-check for a concurrent
	// duplicate.
	g := newGroup(l, groupAddr)

	l.mu.Lock()
	if existing := l.findGroupLocked(groupAddr); existing != nil {
		existing.joinCount++
		l.mu.Unlock()
		// The new allocation was never linked and holds the only
		// reference to itself; drop it without touching the link
		// reference it would have owned.
		g.link = nil
		l.release()
		return nil
	}
	g.joinCount = 1
	g.sendCount = l.robustness
	g.stateChange = true
	g.lastReporter = true
	l.groups = append(l.groups, g)
	// A transient reference protects the group across the first send.
	g.incRef()
	l.mu.Unlock()

	// The caller's link reference transfers to the group; the list
	// linkage above owns the group reference taken at allocation.
	e.env.Log.Debug("joined group", "link", id, "group", groupAddr)
	g.sendReport()
	g.release()
	return nil
}

// Leave drops one local membership. The last leave unlinks the group
// and starts the leave sequence; the group state stays alive until its
// transmissions drain.
func (e *Engine) Leave(id LinkID, groupAddr netip.Addr) error {
	if groupAddr == AllSystems {
		return nil
	}

	l := e.reg.lookup(id)
	if l == nil {
		return ErrBadAddress
	}
	defer l.release()

	l.mu.Lock()
	g := l.findGroupLocked(groupAddr)
	if g == nil {
		l.mu.Unlock()
		return ErrBadAddress
	}
	g.joinCount--
	if g.joinCount > 0 {
		l.mu.Unlock()
		return nil
	}
	l.unlinkGroupLocked(g)
	g.stateChange = true
	g.sendCount = l.robustness
	l.mu.Unlock()

	// Establish a clean baseline before the leave sequence: cancel the
	// timer and wait out any callback already dispatched, so a stale
	// join retry cannot race the send count. The link state is checked
	// only after the flush, so a link that went down while we waited
	// releases immediately instead of starting a doomed send sequence.
	g.timer.CancelFlush()

	e.env.Log.Debug("left group", "link", id, "group", groupAddr)
	if l.link.Up() {
		g.sendLeave()
	} else {
		// No traffic is possible; drop the reference the leave
		// sequence would have consumed.
		g.release()
	}
	return nil
}

// unlinkGroupLocked removes g from the group list. The list's group
// reference is not dropped here: it passes to the caller, which hands
// it to the leave sequence.
func (l *linkState) unlinkGroupLocked(g *group) {
	for i, other := range l.groups {
		if other == g {
			l.groups = append(l.groups[:i], l.groups[i+1:]...)
			return
		}
	}
	panic("igmp: unlinking group that is not linked")
}

// GroupInfo describes one tracked group, for diagnostics.
type GroupInfo struct {
	Group        netip.Addr
	JoinCount    int
	PendingSends uint8
	LastReporter bool
}

// LinkInfo describes the engine's state for one link, for diagnostics.
type LinkInfo struct {
	Link          LinkID
	Mode          Version
	Robustness    uint8
	QueryInterval time.Duration
	Groups        []GroupInfo
}

// Info returns a snapshot of the state for the link, if any exists.
func (e *Engine) Info(id LinkID) (LinkInfo, bool) {
	l := e.reg.lookup(id)
	if l == nil {
		return LinkInfo{}, false
	}
	defer l.release()

	l.mu.Lock()
	defer l.mu.Unlock()
	info := LinkInfo{
		Link:          id,
		Mode:          l.mode,
		Robustness:    l.robustness,
		QueryInterval: l.queryInterval,
	}
	for _, g := range l.groups {
		info.Groups = append(info.Groups, GroupInfo{
			Group:        g.addr,
			JoinCount:    g.joinCount,
			PendingSends: g.sendCount,
			LastReporter: g.lastReporter,
		})
	}
	return info, true
}
