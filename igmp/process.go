package igmp

import (
	"net/netip"
	"time"
)

// HandleMessage interprets one inbound IGMP payload received on the
// given link. src and dst are the addresses of the enclosing IPv4
// header and routerAlert reports whether it carried the router alert
// option. Malformed or suspicious packets are dropped silently; the
// processor has no caller to report to.
func (e *Engine) HandleMessage(id LinkID, src, dst netip.Addr, routerAlert bool, payload []byte) {
	if len(payload) < MessageSize {
		e.env.Log.Debug("dropping short packet", "link", id, "len", len(payload))
		return
	}
	if !ValidChecksum(payload) {
		e.env.Log.Debug("dropping packet with bad checksum", "link", id)
		return
	}

	l := e.reg.lookup(id)
	if l == nil {
		return
	}
	defer l.release()

	switch MessageType(payload[0]) {
	case TypeMembershipQuery:
		e.processQuery(l, dst, routerAlert, payload)
	case TypeV1MembershipReport, TypeV2MembershipReport:
		e.processReport(l, src, dst, routerAlert, payload)
	case TypeV3MembershipReport, TypeLeaveGroup:
		// Hosts take no action on other hosts' V3 reports or on leave
		// messages.
	default:
		e.env.Log.Debug("dropping unrecognized message", "link", id, "type", payload[0])
	}
}

// processQuery classifies a membership query by size, runs the
// compatibility state machine, and schedules the delayed responses.
func (e *Engine) processQuery(l *linkState, dst netip.Addr, routerAlert bool, b []byte) {
	var (
		version  Version
		respCode uint8
		group    netip.Addr
		v3       V3Query
	)
	switch {
	case len(b) == MessageSize:
		msg, _ := ParseMessage(b)
		group = msg.Group
		respCode = msg.ResponseCode
		if respCode == 0 {
			// A V1 router sends queries with a zero code, to be read
			// as 100 time units (RFC 2236 section 4).
			version = V1
			respCode = 100
		} else {
			version = V2
		}
	case len(b) >= V3QueryMinSize:
		q, ok := ParseV3Query(b)
		if !ok {
			e.env.Log.Debug("dropping malformed V3 query", "link", l.id)
			return
		}
		version = V3
		v3 = q
		group = q.Group
		respCode = q.ResponseCode
	default:
		e.env.Log.Debug("dropping truncated query", "link", l.id, "len", len(b))
		return
	}

	general := group.IsUnspecified()

	// Spoofing hardening, V2 and V3 only: queries must carry the router
	// alert option, general queries must be addressed to all-systems,
	// and the all-systems group itself is never reportable.
	if version != V1 {
		if !routerAlert {
			e.env.Log.Debug("dropping query without router alert", "link", l.id)
			return
		}
		if general && dst != AllSystems {
			e.env.Log.Debug("dropping misaddressed general query", "link", l.id, "dst", dst)
			return
		}
		if group == AllSystems {
			e.env.Log.Debug("dropping query for all-systems group", "link", l.id)
			return
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch version {
	case V1, V2:
		// The window uses the response interval seen before this query
		// updates it.
		l.armCompatTimerLocked(version, l.compatWindowLocked())
	case V3:
		// Zero-valued fields request no change.
		if interval := DecodeTimeCode(v3.QueryIntervalCode); interval != 0 {
			l.queryInterval = time.Duration(interval) * time.Second
		}
		if v3.RobustnessCode != 0 {
			l.robustness = v3.RobustnessCode
			for _, g := range l.groups {
				if g.sendCount > l.robustness {
					g.sendCount = l.robustness
				}
			}
		}
	}

	l.maxRespTime = time.Duration(DecodeTimeCode(respCode)) * queryTimeUnit

	if l.mode == V3 && general {
		l.armLinkReportLocked(l.maxRespTime)
		return
	}
	for _, g := range l.groups {
		if !general && g.addr != group {
			continue
		}
		// The pending send becomes a current-state report.
		g.stateChange = false
		if g.sendCount < 1 {
			g.sendCount = 1
		}
		l.armDelayedReportLocked(g.timer, l.maxRespTime)
	}
}

// armLinkReportLocked schedules the response to a V3 general query at a
// random delay, keeping an already pending earlier response.
func (l *linkState) armLinkReportLocked(maxDelay time.Duration) {
	l.armDelayedReportLocked(l.reportTimer, maxDelay)
}

// armDelayedReportLocked applies the standard response delay rule: if
// the timer already fires within the allowed window it is left alone,
// otherwise it is rescheduled to a random delay in (0, maxDelay].
func (l *linkState) armDelayedReportLocked(t *DeferredTimer, maxDelay time.Duration) {
	if firesAt := t.FiresAt(); !firesAt.IsZero() && time.Until(firesAt) <= maxDelay {
		return
	}
	if t.Cancel() == TimerAlreadyFired {
		return
	}
	t.Schedule(l.env.randomDelay(maxDelay))
}

// processReport applies another host's V1/V2 membership report: if it
// covers a group this host tracks, the pending response is suppressed.
// V3 reports are never examined in host mode.
func (e *Engine) processReport(l *linkState, src, dst netip.Addr, routerAlert bool, b []byte) {
	msg, ok := ParseMessage(b)
	if !ok {
		e.env.Log.Debug("dropping report of unexpected size", "link", l.id, "len", len(b))
		return
	}
	// Reports must originate on the local subnet (or carry no source at
	// all, as during address acquisition).
	if !src.IsUnspecified() && !l.link.Contains(src) {
		e.env.Log.Debug("dropping report from non-local source", "link", l.id, "src", src)
		return
	}
	if msg.Type == TypeV2MembershipReport && !routerAlert {
		e.env.Log.Debug("dropping V2 report without router alert", "link", l.id)
		return
	}
	if msg.Group.IsUnspecified() || dst != msg.Group {
		e.env.Log.Debug("dropping report with mismatched group", "link", l.id, "group", msg.Group, "dst", dst)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if g := l.findGroupLocked(msg.Group); g != nil {
		// Another host reported first; it owns reporting for now.
		g.timer.Cancel()
		g.lastReporter = false
	}
}
