package netio

import (
	"net/netip"
	"testing"

	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netlayer/igmphost/igmp"
)

func TestHasRouterAlert(t *testing.T) {
	assert.False(t, hasRouterAlert(nil))
	assert.True(t, hasRouterAlert([]byte{0x94, 0x04, 0x00, 0x00}))
	// Preceded by a no-op option.
	assert.True(t, hasRouterAlert([]byte{0x01, 0x94, 0x04, 0x00, 0x00}))
	// A different option of the same length.
	assert.False(t, hasRouterAlert([]byte{0x07, 0x04, 0x00, 0x00}))
	// End-of-list stops the scan.
	assert.False(t, hasRouterAlert([]byte{0x00, 0x94, 0x04, 0x00, 0x00}))
	// Malformed length must not loop or overrun.
	assert.False(t, hasRouterAlert([]byte{0x07, 0x01, 0x94}))
	assert.False(t, hasRouterAlert([]byte{0x07}))
}

func TestNoteQuerier(t *testing.T) {
	l := &Link{
		queriers: ttlcache.New[netip.Addr, igmp.Version](),
	}
	router := netip.MustParseAddr("10.0.0.1")

	// Non-queries are not recorded.
	report := igmp.Message{Type: igmp.TypeV2MembershipReport, Group: netip.MustParseAddr("224.1.1.1")}.Marshal()
	l.noteQuerier(router, report)
	assert.Empty(t, l.Queriers())

	l.noteQuerier(router, igmp.Message{Type: igmp.TypeMembershipQuery}.Marshal())
	queriers := l.Queriers()
	require.Len(t, queriers, 1)
	assert.Equal(t, igmp.V1, queriers[0].Version)

	l.noteQuerier(router, igmp.Message{Type: igmp.TypeMembershipQuery, ResponseCode: 100}.Marshal())
	queriers = l.Queriers()
	require.Len(t, queriers, 1)
	assert.Equal(t, igmp.V2, queriers[0].Version)

	l.noteQuerier(router, igmp.V3Query{ResponseCode: 100}.Marshal())
	queriers = l.Queriers()
	require.Len(t, queriers, 1)
	assert.Equal(t, igmp.V3, queriers[0].Version)
}
