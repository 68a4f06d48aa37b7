package igmp

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// LinkID identifies a network link. The daemon uses the interface
// index, but the engine treats it as opaque.
type LinkID int32

// Link is the link-layer path the engine sends through. Implementations
// are externally owned; the engine never opens sockets itself.
type Link interface {
	// Up reports whether the link is currently able to transmit.
	Up() bool

	// MTU returns the link MTU in bytes.
	MTU() int

	// LocalAddr returns the local IPv4 address in use on the link.
	LocalAddr() netip.Addr

	// Contains reports whether addr belongs to a subnet assigned to the
	// link. Used to filter spoofed membership reports.
	Contains(addr netip.Addr) bool

	// Send transmits an IGMP payload to dst. The implementation wraps
	// it in an IPv4 header with TTL 1 and the router alert option.
	Send(dst netip.Addr, payload []byte) error
}

// Version is an IGMP protocol version.
type Version int

const (
	V1 Version = iota + 1
	V2
	V3
)

func (v Version) String() string {
	switch v {
	case V1:
		return "IGMPv1"
	case V2:
		return "IGMPv2"
	case V3:
		return "IGMPv3"
	default:
		return "IGMP?"
	}
}

const (
	// DefaultRobustness is the default retransmission count
	// (RFC 3376 section 8.1).
	DefaultRobustness = 2

	// DefaultQueryInterval is the assumed interval between general
	// queries until a querier advertises its own (RFC 3376 section 8.2).
	DefaultQueryInterval = 125 * time.Second

	// DefaultMaxResponseTime is the response interval assumed before
	// any query has been seen: 100 time units of a tenth of a second.
	DefaultMaxResponseTime = 100 * queryTimeUnit

	// DefaultUnsolicitedReportInterval is the delay between the
	// unsolicited transmissions of a state change.
	DefaultUnsolicitedReportInterval = time.Second

	// queryTimeUnit is the unit of query response codes.
	queryTimeUnit = 100 * time.Millisecond

	// sendOverhead is the IPv4 header plus the router alert option,
	// subtracted from the link MTU to size reports.
	sendOverhead = 24
)

// LinkConfig overrides per-link protocol parameters. Zero fields keep
// their defaults.
type LinkConfig struct {
	Robustness                uint8
	QueryInterval             time.Duration
	UnsolicitedReportInterval time.Duration
}

// linkState is the per-link protocol state: configuration, the version
// compatibility machine and the group list. One mutex guards all of it
// except the reference count.
type linkState struct {
	id   LinkID
	link Link
	env  *Env
	reg  *linkRegistry

	// refs counts the registry's hold, one hold per linked group, and
	// transient holds taken around sends.
	refs atomic.Int32

	mu            sync.Mutex
	robustness    uint8
	queryInterval time.Duration
	// maxRespTime is the response interval carried by the most recent
	// query.
	maxRespTime         time.Duration
	maxPacketSize       int
	unsolicitedInterval time.Duration
	mode                Version

	// v1Timer and v2Timer are armed while a query of the corresponding
	// legacy version was recently seen; the compatibility mode is
	// derived from which of them is running.
	v1Timer *DeferredTimer
	v2Timer *DeferredTimer

	// reportTimer schedules the response to a V3 general query.
	reportTimer *DeferredTimer

	groups []*group
}

func newLinkState(env *Env, reg *linkRegistry, id LinkID, link Link, cfg LinkConfig) *linkState {
	l := &linkState{
		id:                  id,
		link:                link,
		env:                 env,
		reg:                 reg,
		robustness:          DefaultRobustness,
		queryInterval:       DefaultQueryInterval,
		maxRespTime:         DefaultMaxResponseTime,
		maxPacketSize:       link.MTU() - sendOverhead,
		unsolicitedInterval: DefaultUnsolicitedReportInterval,
		mode:                V3,
	}
	if cfg.Robustness != 0 {
		l.robustness = cfg.Robustness
	}
	if cfg.QueryInterval != 0 {
		l.queryInterval = cfg.QueryInterval
	}
	if cfg.UnsolicitedReportInterval != 0 {
		l.unsolicitedInterval = cfg.UnsolicitedReportInterval
	}
	l.v1Timer = NewDeferredTimer(env, l.compatTimerFired)
	l.v2Timer = NewDeferredTimer(env, l.compatTimerFired)
	l.reportTimer = NewDeferredTimer(env, l.sendLinkReport)
	l.refs.Store(1)
	return l
}

func (l *linkState) incRef() {
	l.refs.Add(1)
}

// release drops one reference, routing through the registry so removal
// and the final drop stay atomic with respect to concurrent lookups.
func (l *linkState) release() {
	l.reg.release(l)
}

// destroy tears the link state down once the last reference is gone.
// It may execute on the work queue itself (a final leave retransmission
// releases the group's link reference there), so it must not flush the
// timers. A callback that already triggered either fails tryIncRef or
// only touches state nothing else can reach anymore.
func (l *linkState) destroy() {
	l.mu.Lock()
	remaining := len(l.groups)
	l.mu.Unlock()
	if remaining != 0 {
		panic("igmp: destroying link state with linked groups")
	}
	l.v1Timer.Cancel()
	l.v2Timer.Cancel()
	l.reportTimer.Cancel()
	l.env.Log.Debug("link state destroyed", "link", l.id)
}

func (l *linkState) findGroupLocked(addr netip.Addr) *group {
	for _, g := range l.groups {
		if g.addr == addr {
			return g
		}
	}
	return nil
}

// compatTimerFired recomputes the mode after a compatibility window
// elapses.
func (l *linkState) compatTimerFired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updateModeLocked()
}

// updateModeLocked derives the compatibility mode from the legacy query
// timers: V1 wins over V2, V3 is the default. A transition cancels
// every pending report so that packets framed for the old mode never
// fire after the mode has changed.
func (l *linkState) updateModeLocked() {
	mode := V3
	if !l.v1Timer.FiresAt().IsZero() {
		mode = V1
	} else if !l.v2Timer.FiresAt().IsZero() {
		mode = V2
	}
	if mode == l.mode {
		return
	}
	l.env.Log.Debug("compatibility mode changed", "link", l.id, "from", l.mode, "to", mode)
	l.mode = mode
	l.reportTimer.Cancel()
	for _, g := range l.groups {
		g.timer.Cancel()
	}
}

// armCompatTimerLocked (re)arms a legacy version timer. An earlier
// schedule is only replaced if the new due time is later, and a timer
// that already fired is left to run rather than rescheduled.
func (l *linkState) armCompatTimerLocked(version Version, d time.Duration) {
	t := l.v1Timer
	if version == V2 {
		t = l.v2Timer
	}
	due := time.Now().Add(d)
	if firesAt := t.FiresAt(); !firesAt.IsZero() && firesAt.After(due) {
		return
	}
	if t.Cancel() == TimerAlreadyFired {
		return
	}
	t.Schedule(d)
	l.updateModeLocked()
}

// compatWindowLocked is how long a legacy querier is assumed present
// after one of its queries: RobustnessVariable times QueryInterval plus
// one query response interval (RFC 3376 section 8.12).
func (l *linkState) compatWindowLocked() time.Duration {
	return time.Duration(l.robustness)*l.queryInterval + l.maxRespTime
}
