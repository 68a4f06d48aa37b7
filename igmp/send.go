package igmp

import "net/netip"

// sendReport transmits one membership report for the group in the wire
// format of the link's current mode, then schedules the next
// unsolicited transmission if any remain.
func (g *group) sendReport() {
	l := g.link

	l.mu.Lock()
	mode := l.mode
	changed := g.stateChange
	interval := l.unsolicitedInterval
	l.mu.Unlock()

	var (
		payload []byte
		dst     netip.Addr
	)
	switch mode {
	case V3:
		recordType := RecordModeIsExclude
		if changed {
			recordType = RecordChangeToExclude
		}
		payload = MarshalV3Report([]GroupRecord{{Type: recordType, Group: g.addr}})
		dst = V3AllRouters
	case V2:
		payload = Message{Type: TypeV2MembershipReport, Group: g.addr}.Marshal()
		dst = g.addr
	case V1:
		payload = Message{Type: TypeV1MembershipReport, Group: g.addr}.Marshal()
		dst = g.addr
	}

	if err := l.link.Send(dst, payload); err != nil {
		l.env.Log.Warn("report send failed", "link", l.id, "group", g.addr, "error", err)
	}

	l.mu.Lock()
	g.lastReporter = true
	if g.joinCount > 0 {
		if g.sendCount > 0 {
			g.sendCount--
		}
		if g.sendCount > 0 {
			g.timer.Schedule(interval)
		}
	}
	l.mu.Unlock()
}

// sendLeave transmits one leave message for an unlinked group and
// either schedules the next retry or drops the leave sequence's group
// reference, destroying the state.
func (g *group) sendLeave() {
	l := g.link

	l.mu.Lock()
	mode := l.mode
	interval := l.unsolicitedInterval
	// V1 has no leave message, and a host that was not the last
	// reporter may skip leaving entirely (RFC 2236 section 6).
	skip := !g.lastReporter || mode == V1
	l.mu.Unlock()

	if skip {
		g.release()
		return
	}

	var (
		payload []byte
		dst     netip.Addr
	)
	if mode == V2 {
		payload = Message{Type: TypeLeaveGroup, Group: g.addr}.Marshal()
		dst = AllRouters
	} else {
		payload = MarshalV3Report([]GroupRecord{{Type: RecordChangeToInclude, Group: g.addr}})
		dst = V3AllRouters
	}

	if err := l.link.Send(dst, payload); err != nil {
		l.env.Log.Warn("leave send failed", "link", l.id, "group", g.addr, "error", err)
	}

	l.mu.Lock()
	g.leaveSent = true
	if g.sendCount > 0 {
		g.sendCount--
	}
	more := g.sendCount > 0
	if more {
		g.timer.Schedule(interval)
	}
	l.mu.Unlock()

	if !more {
		g.release()
	}
}

// sendLinkReport answers a V3 general query: every current group is
// reported as a mode-is-exclude record, packed into as few reports as
// the link's packet size allows.
func (l *linkState) sendLinkReport() {
	if !l.tryIncRef() {
		return
	}
	defer l.release()

	l.mu.Lock()
	if l.mode != V3 {
		l.mu.Unlock()
		return
	}
	addrs := make([]netip.Addr, 0, len(l.groups))
	for _, g := range l.groups {
		addrs = append(addrs, g.addr)
	}
	maxRecords := (l.maxPacketSize - V3ReportHeaderSize) / GroupRecordSize
	l.mu.Unlock()

	if maxRecords < 1 {
		maxRecords = 1
	}
	if maxRecords > MaxRecordsPerReport {
		maxRecords = MaxRecordsPerReport
	}

	for start := 0; start < len(addrs); start += maxRecords {
		end := min(start+maxRecords, len(addrs))
		records := make([]GroupRecord, 0, end-start)
		for _, addr := range addrs[start:end] {
			records = append(records, GroupRecord{Type: RecordModeIsExclude, Group: addr})
		}
		if err := l.link.Send(V3AllRouters, MarshalV3Report(records)); err != nil {
			l.env.Log.Warn("link report send failed", "link", l.id, "error", err)
		}
	}
}

// tryIncRef takes a reference only while the link state is still alive;
// used by the link-wide report timer, which holds none of its own.
func (l *linkState) tryIncRef() bool {
	for {
		n := l.refs.Load()
		if n == 0 {
			return false
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}
