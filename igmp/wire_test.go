package igmp

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

func TestDecodeTimeCode(t *testing.T) {
	// Values below 128 encode themselves.
	for _, code := range []uint8{0, 1, 50, 100, 127} {
		assert.Equal(t, uint32(code), DecodeTimeCode(code), "code %d", code)
	}
	// 128 is mantissa 0, exponent 0: (0|0x10)<<3 = 128.
	assert.Equal(t, uint32(128), DecodeTimeCode(128))
	// 0xfd is mantissa 0xd, exponent 7: (0xd|0x10)<<10 = 29696.
	assert.Equal(t, uint32(29696), DecodeTimeCode(0xfd))
	assert.Equal(t, uint32(0x1f<<10), DecodeTimeCode(0xff))
}

func TestMarshalledMessagesChecksumToZero(t *testing.T) {
	group := netip.AddrFrom4([4]byte{224, 1, 2, 3})
	payloads := [][]byte{
		Message{Type: TypeV2MembershipReport, Group: group}.Marshal(),
		Message{Type: TypeLeaveGroup, Group: group}.Marshal(),
		V3Query{ResponseCode: 100, Group: group, QueryIntervalCode: 125}.Marshal(),
		MarshalV3Report([]GroupRecord{{Type: RecordChangeToExclude, Group: group}}),
	}
	for _, b := range payloads {
		// Summing the full message, checksum included, must yield the
		// all-ones result (RFC 1071).
		assert.Equal(t, uint16(0xffff), checksum.Checksum(b, 0))
		assert.True(t, ValidChecksum(b))
	}

	// Corruption must be caught.
	b := payloads[0]
	b[4] ^= 0x01
	assert.False(t, ValidChecksum(b))
}

func TestMarshalGeneralQuery(t *testing.T) {
	// A general query carries no group; the zero Addr must marshal as
	// 0.0.0.0 rather than blowing up.
	b := Message{Type: TypeMembershipQuery}.Marshal()
	msg, ok := ParseMessage(b)
	require.True(t, ok)
	assert.True(t, msg.Group.IsUnspecified())

	b = V3Query{ResponseCode: 1}.Marshal()
	q, ok := ParseV3Query(b)
	require.True(t, ok)
	assert.True(t, q.Group.IsUnspecified())
	assert.True(t, ValidChecksum(b))
}

func TestParseMessage(t *testing.T) {
	group := netip.AddrFrom4([4]byte{239, 0, 0, 7})
	msg := Message{Type: TypeV1MembershipReport, ResponseCode: 0, Group: group}
	parsed, ok := ParseMessage(msg.Marshal())
	require.True(t, ok)
	assert.Equal(t, msg, parsed)

	_, ok = ParseMessage(make([]byte, 7))
	assert.False(t, ok)
	_, ok = ParseMessage(make([]byte, 9))
	assert.False(t, ok)
}

func TestParseV3Query(t *testing.T) {
	q := V3Query{
		ResponseCode:      0x8a,
		Group:             netip.AddrFrom4([4]byte{224, 10, 0, 1}),
		SuppressRouters:   true,
		RobustnessCode:    3,
		QueryIntervalCode: 125,
		Sources: []netip.Addr{
			netip.AddrFrom4([4]byte{10, 0, 0, 1}),
			netip.AddrFrom4([4]byte{10, 0, 0, 2}),
		},
	}
	parsed, ok := ParseV3Query(q.Marshal())
	require.True(t, ok)
	if diff := cmp.Diff(q, parsed, cmpopts.EquateComparable(netip.Addr{})); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	// A source count overrunning the buffer must be rejected.
	b := q.Marshal()
	b[11] = 200
	_, ok = ParseV3Query(b)
	assert.False(t, ok)
}

func TestParseV3Report(t *testing.T) {
	records := []GroupRecord{
		{Type: RecordChangeToExclude, Group: netip.AddrFrom4([4]byte{224, 1, 1, 1})},
		{Type: RecordModeIsExclude, Group: netip.AddrFrom4([4]byte{224, 1, 1, 2})},
	}
	b := MarshalV3Report(records)
	parsed, ok := ParseV3Report(b)
	require.True(t, ok)
	if diff := cmp.Diff(records, parsed, cmpopts.EquateComparable(netip.Addr{})); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	// Truncated record list.
	_, ok = ParseV3Report(b[:len(b)-1])
	assert.False(t, ok)
}
