package igmp

import (
	"encoding/binary"
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// MessageType is the value of the first byte of an IGMP message.
type MessageType uint8

const (
	TypeMembershipQuery    MessageType = 0x11
	TypeV1MembershipReport MessageType = 0x12
	TypeV2MembershipReport MessageType = 0x16
	TypeLeaveGroup         MessageType = 0x17
	TypeV3MembershipReport MessageType = 0x22
)

// RecordType identifies a group record inside a V3 membership report
// (RFC 3376 section 4.2.12).
type RecordType uint8

const (
	RecordModeIsInclude RecordType = iota + 1
	RecordModeIsExclude
	RecordChangeToInclude
	RecordChangeToExclude
)

const (
	// MessageSize is the size of a V1/V2 message, and of the common
	// prefix of every query.
	MessageSize = 8

	// V3QueryMinSize is the smallest valid V3 membership query.
	V3QueryMinSize = 12

	// V3ReportHeaderSize precedes the group records of a V3 report.
	V3ReportHeaderSize = 8

	// GroupRecordSize is the size of a group record carrying no sources
	// and no auxiliary data.
	GroupRecordSize = 8

	// MaxRecordsPerReport caps the 16-bit record count of a single V3
	// report.
	MaxRecordsPerReport = 65535

	// queryFlagsRobustnessMask covers the QRV bits of a V3 query.
	queryFlagsRobustnessMask = 0x07
)

var (
	// AllSystems is the well-known all-systems group (224.0.0.1). It is
	// never reported and never tracked.
	AllSystems = netip.AddrFrom4([4]byte{224, 0, 0, 1})

	// AllRouters is the destination of V2 leave messages (224.0.0.2).
	AllRouters = netip.AddrFrom4([4]byte{224, 0, 0, 2})

	// V3AllRouters is the destination of V3 membership reports
	// (224.0.0.22).
	V3AllRouters = netip.AddrFrom4([4]byte{224, 0, 0, 22})
)

// DecodeTimeCode expands an 8-bit time code into protocol time units.
// Values below 128 encode themselves; above that the code is a 3-bit
// exponent and 4-bit mantissa (RFC 3376 sections 4.1.1 and 4.1.7).
func DecodeTimeCode(code uint8) uint32 {
	if code < 0x80 {
		return uint32(code)
	}
	mantissa := uint32(code & 0x0f)
	exponent := uint32(code>>4) & 0x07
	return (mantissa | 0x10) << (exponent + 3)
}

// Checksum returns the value of the checksum field for a message whose
// checksum bytes are zero.
func Checksum(b []byte) uint16 {
	return ^checksum.Checksum(b, 0)
}

// ValidChecksum reports whether summing the whole message, checksum
// field included, yields the expected all-ones result (RFC 1071).
func ValidChecksum(b []byte) bool {
	return checksum.Checksum(b, 0) == 0xffff
}

// putAddr writes addr as 4 bytes. The zero Addr marshals as 0.0.0.0,
// which is how a general query carries no group.
func putAddr(b []byte, addr netip.Addr) {
	if addr.IsValid() {
		v := addr.As4()
		copy(b, v[:])
	}
}

// Message is a V1/V2 wire message: queries, V1/V2 reports and leaves
// all share this 8 byte layout.
type Message struct {
	Type         MessageType
	ResponseCode uint8
	Group        netip.Addr
}

// Marshal serializes the message with a computed checksum.
func (m Message) Marshal() []byte {
	b := make([]byte, MessageSize)
	b[0] = byte(m.Type)
	b[1] = m.ResponseCode
	putAddr(b[4:8], m.Group)
	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	return b
}

// ParseMessage decodes an 8 byte V1/V2 message. The checksum is not
// verified here.
func ParseMessage(b []byte) (Message, bool) {
	if len(b) != MessageSize {
		return Message{}, false
	}
	return Message{
		Type:         MessageType(b[0]),
		ResponseCode: b[1],
		Group:        netip.AddrFrom4([4]byte(b[4:8])),
	}, true
}

// V3Query is a V3 membership query.
type V3Query struct {
	ResponseCode      uint8
	Group             netip.Addr
	SuppressRouters   bool
	RobustnessCode    uint8
	QueryIntervalCode uint8
	Sources           []netip.Addr
}

// Marshal serializes the query with a computed checksum.
func (q V3Query) Marshal() []byte {
	b := make([]byte, V3QueryMinSize+4*len(q.Sources))
	b[0] = byte(TypeMembershipQuery)
	b[1] = q.ResponseCode
	putAddr(b[4:8], q.Group)
	b[8] = q.RobustnessCode & queryFlagsRobustnessMask
	if q.SuppressRouters {
		b[8] |= 0x08
	}
	b[9] = q.QueryIntervalCode
	binary.BigEndian.PutUint16(b[10:12], uint16(len(q.Sources)))
	for i, source := range q.Sources {
		putAddr(b[V3QueryMinSize+4*i:], source)
	}
	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	return b
}

// ParseV3Query decodes a V3 membership query, rejecting messages whose
// source list overruns the buffer.
func ParseV3Query(b []byte) (V3Query, bool) {
	if len(b) < V3QueryMinSize || MessageType(b[0]) != TypeMembershipQuery {
		return V3Query{}, false
	}
	count := int(binary.BigEndian.Uint16(b[10:12]))
	if len(b) < V3QueryMinSize+4*count {
		return V3Query{}, false
	}
	q := V3Query{
		ResponseCode:      b[1],
		Group:             netip.AddrFrom4([4]byte(b[4:8])),
		SuppressRouters:   b[8]&0x08 != 0,
		RobustnessCode:    b[8] & queryFlagsRobustnessMask,
		QueryIntervalCode: b[9],
	}
	for i := 0; i < count; i++ {
		q.Sources = append(q.Sources, netip.AddrFrom4([4]byte(b[V3QueryMinSize+4*i:V3QueryMinSize+4*i+4])))
	}
	return q, true
}

// GroupRecord is a single group record of a V3 report. Records built by
// this host carry no sources and no auxiliary data.
type GroupRecord struct {
	Type  RecordType
	Group netip.Addr
}

// MarshalV3Report serializes a V3 membership report carrying the given
// records, with a computed checksum.
func MarshalV3Report(records []GroupRecord) []byte {
	b := make([]byte, V3ReportHeaderSize+GroupRecordSize*len(records))
	b[0] = byte(TypeV3MembershipReport)
	binary.BigEndian.PutUint16(b[6:8], uint16(len(records)))
	for i, record := range records {
		off := V3ReportHeaderSize + GroupRecordSize*i
		b[off] = byte(record.Type)
		putAddr(b[off+4:off+8], record.Group)
	}
	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	return b
}

// ParseV3Report decodes a V3 membership report.
func ParseV3Report(b []byte) ([]GroupRecord, bool) {
	if len(b) < V3ReportHeaderSize || MessageType(b[0]) != TypeV3MembershipReport {
		return nil, false
	}
	count := int(binary.BigEndian.Uint16(b[6:8]))
	records := make([]GroupRecord, 0, count)
	off := V3ReportHeaderSize
	for i := 0; i < count; i++ {
		if len(b) < off+GroupRecordSize {
			return nil, false
		}
		sources := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		auxWords := int(b[off+1])
		records = append(records, GroupRecord{
			Type:  RecordType(b[off]),
			Group: netip.AddrFrom4([4]byte(b[off+4 : off+8])),
		})
		off += GroupRecordSize + 4*sources + 4*auxWords
		if len(b) < off {
			return nil, false
		}
	}
	return records, true
}
