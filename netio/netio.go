// Package netio binds the IGMP engine to real network interfaces. Each
// Link owns a raw IGMP socket: outbound traffic is wrapped in an IPv4
// header carrying TTL 1 and the router alert option, inbound traffic is
// stripped and handed to the engine's message processor.
package netio

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/gaissmai/bart"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/net/ipv4"

	"github.com/netlayer/igmphost/igmp"
)

const igmpProtocol = 2

// otherQuerierPresentInterval bounds how long a querier stays listed
// after its last query (robustness * query interval + half the max
// response time, with default parameters).
const otherQuerierPresentInterval = 255 * time.Second

// routerAlertOption is the 4-byte IPv4 router alert option (type 0x94,
// length 4, value 0) required on queries, V2 reports and leaves.
var routerAlertOption = []byte{0x94, 0x04, 0x00, 0x00}

// Link is an igmp.Link backed by a raw socket bound to one interface.
type Link struct {
	name  string
	index int
	mtu   int
	local netip.Addr
	log   *slog.Logger

	pc  net.PacketConn
	raw *ipv4.RawConn

	subnets  bart.Table[struct{}]
	queriers *ttlcache.Cache[netip.Addr, igmp.Version]

	closed atomic.Bool
}

var _ igmp.Link = (*Link)(nil)

// Open sets up a raw IGMP socket on the named interface and joins the
// groups a host must always listen on. It requires CAP_NET_RAW.
func Open(name string, log *slog.Logger) (*Link, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("netio: interface %s: %w", name, err)
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("netio: addresses of %s: %w", name, err)
	}
	l := &Link{
		name:  name,
		index: ifi.Index,
		mtu:   ifi.MTU,
		log:   log,
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if ok && ipn.IP.To4() != nil {
			addr, _ := netip.AddrFromSlice(ipn.IP.To4())
			ones, _ := ipn.Mask.Size()
			l.subnets.Insert(netip.PrefixFrom(addr, ones).Masked(), struct{}{})
			if !l.local.IsValid() {
				l.local = addr
			}
		}
	}
	if !l.local.IsValid() {
		return nil, fmt.Errorf("netio: interface %s has no IPv4 address", name)
	}

	pc, err := net.ListenPacket("ip4:2", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("netio: raw socket: %w", err)
	}
	if err := bindToDevice(pc, name); err != nil {
		pc.Close()
		return nil, fmt.Errorf("netio: bind %s: %w", name, err)
	}
	raw, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}
	l.pc = pc
	l.raw = raw

	// Queries arrive on all-systems; V3 hosts additionally listen on the
	// V3 all-routers group for suppression-relevant reports.
	for _, group := range []netip.Addr{igmp.AllSystems, igmp.V3AllRouters} {
		err := raw.JoinGroup(ifi, &net.IPAddr{IP: group.AsSlice()})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("netio: join %s on %s: %w", group, name, err)
		}
	}

	l.queriers = ttlcache.New[netip.Addr, igmp.Version](
		ttlcache.WithTTL[netip.Addr, igmp.Version](otherQuerierPresentInterval),
	)
	go l.queriers.Start()
	return l, nil
}

// Name returns the interface name the link is bound to.
func (l *Link) Name() string {
	return l.name
}

// ID returns the engine link identifier, derived from the interface
// index so it stays stable across daemon restarts.
func (l *Link) ID() igmp.LinkID {
	return igmp.LinkID(l.index)
}

func (l *Link) Up() bool {
	ifi, err := net.InterfaceByIndex(l.index)
	if err != nil {
		return false
	}
	return ifi.Flags&net.FlagUp != 0
}

func (l *Link) MTU() int {
	return l.mtu
}

func (l *Link) LocalAddr() netip.Addr {
	return l.local
}

func (l *Link) Contains(addr netip.Addr) bool {
	_, ok := l.subnets.Lookup(addr)
	return ok
}

func (l *Link) Send(dst netip.Addr, payload []byte) error {
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen + len(routerAlertOption),
		TOS:      0xc0,
		TotalLen: ipv4.HeaderLen + len(routerAlertOption) + len(payload),
		TTL:      1,
		Protocol: igmpProtocol,
		Src:      l.local.AsSlice(),
		Dst:      dst.AsSlice(),
		Options:  routerAlertOption,
	}
	return l.raw.WriteTo(h, payload, nil)
}

// Serve reads packets until the link is closed, feeding each one to the
// engine with the metadata the processor's filters need.
func (l *Link) Serve(e *igmp.Engine, id igmp.LinkID) {
	buf := make([]byte, 65535)
	for {
		h, payload, _, err := l.raw.ReadFrom(buf)
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.log.Warn("read failed", "interface", l.name, "error", err)
			continue
		}
		src, okSrc := netip.AddrFromSlice(h.Src.To4())
		dst, okDst := netip.AddrFromSlice(h.Dst.To4())
		if !okSrc || !okDst {
			continue
		}
		l.noteQuerier(src, payload)
		e.HandleMessage(id, src, dst, hasRouterAlert(h.Options), payload)
	}
}

// hasRouterAlert walks the IPv4 options area looking for the router
// alert option.
func hasRouterAlert(options []byte) bool {
	for i := 0; i < len(options); {
		switch options[i] {
		case 0: // end of option list
			return false
		case 1: // no-op
			i++
		case routerAlertOption[0]:
			return true
		default:
			if i+1 >= len(options) || options[i+1] < 2 {
				return false
			}
			i += int(options[i+1])
		}
	}
	return false
}

func (l *Link) noteQuerier(src netip.Addr, payload []byte) {
	if len(payload) == 0 || igmp.MessageType(payload[0]) != igmp.TypeMembershipQuery {
		return
	}
	version := igmp.V3
	if len(payload) == igmp.MessageSize {
		version = igmp.V2
		if payload[1] == 0 {
			version = igmp.V1
		}
	}
	l.queriers.Set(src, version, ttlcache.DefaultTTL)
}

// Querier describes a router recently seen sending queries on the link.
type Querier struct {
	Addr    netip.Addr
	Version igmp.Version
}

// Queriers lists the queriers seen within the other-querier-present
// window, for diagnostics.
func (l *Link) Queriers() []Querier {
	items := l.queriers.Items()
	out := make([]Querier, 0, len(items))
	for addr, item := range items {
		out = append(out, Querier{Addr: addr, Version: item.Value()})
	}
	return out
}

// Close shuts the socket down; a blocked Serve returns.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.queriers.Stop()
	return l.pc.Close()
}
