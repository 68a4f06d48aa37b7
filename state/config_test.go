package state

import (
	"net/netip"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
interfaces:
  - name: eth0
    groups:
      - 224.1.1.1
      - 239.255.0.10
    robustness: 3
    query_interval: 60s
  - name: eth1
log_path: /var/log/igmphost.log
`

func TestConfigUnmarshal(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(sampleConfig), &cfg))
	ExpandConfig(&cfg)

	require.Len(t, cfg.Interfaces, 2)
	assert.Equal(t, "eth0", cfg.Interfaces[0].Name)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("224.1.1.1"),
		netip.MustParseAddr("239.255.0.10"),
	}, cfg.Interfaces[0].Groups)
	assert.Equal(t, uint8(3), cfg.Interfaces[0].Robustness)
	assert.Equal(t, 60*time.Second, cfg.Interfaces[0].QueryInterval)
	assert.Equal(t, "/var/log/igmphost.log", cfg.LogPath)

	// Defaults filled by expansion.
	assert.Equal(t, DefaultCtlSock, cfg.CtlSock)
	assert.Zero(t, cfg.Interfaces[1].Robustness)
}

func TestConfigInterfaceLookup(t *testing.T) {
	cfg := Config{Interfaces: []InterfaceCfg{{Name: "eth0"}, {Name: "wlan0"}}}
	require.NotNil(t, cfg.Interface("wlan0"))
	assert.Equal(t, "wlan0", cfg.Interface("wlan0").Name)
	assert.Nil(t, cfg.Interface("eth9"))
}
