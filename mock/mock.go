// Package mock provides an in-memory link implementation used to
// exercise the IGMP engine without touching real sockets.
package mock

import (
	"net/netip"
	"sync"
	"time"

	"github.com/netlayer/igmphost/igmp"
)

// SentPacket is one payload captured by a mock link.
type SentPacket struct {
	Dst     netip.Addr
	Payload []byte
	At      time.Time
}

// Link is an in-memory igmp.Link that records everything sent through
// it.
type Link struct {
	mu     sync.Mutex
	up     bool
	mtu    int
	local  netip.Addr
	subnet netip.Prefix
	sent   []SentPacket
}

var _ igmp.Link = (*Link)(nil)

// NewLink returns an up link with the given local address and subnet.
func NewLink(local netip.Addr, subnet netip.Prefix, mtu int) *Link {
	return &Link{
		up:     true,
		mtu:    mtu,
		local:  local,
		subnet: subnet,
	}
}

func (l *Link) Up() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

// SetUp flips the administrative state of the link.
func (l *Link) SetUp(up bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up = up
}

func (l *Link) MTU() int {
	return l.mtu
}

func (l *Link) LocalAddr() netip.Addr {
	return l.local
}

func (l *Link) Contains(addr netip.Addr) bool {
	return l.subnet.Contains(addr)
}

func (l *Link) Send(dst netip.Addr, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	l.sent = append(l.sent, SentPacket{Dst: dst, Payload: buf, At: time.Now()})
	return nil
}

// Sent returns a copy of every packet sent so far.
func (l *Link) Sent() []SentPacket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SentPacket(nil), l.sent...)
}

// SentCount returns the number of packets sent so far.
func (l *Link) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

// Reset discards the captured packets.
func (l *Link) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = nil
}
