package state

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Interfaces: []InterfaceCfg{
			{Name: "eth0", Groups: []netip.Addr{netip.MustParseAddr("224.1.1.1")}},
		},
		CtlSock: DefaultCtlSock,
	}
}

func TestConfigValidator(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, ConfigValidator(&cfg))

	cfg = validConfig()
	cfg.Interfaces = nil
	assert.Error(t, ConfigValidator(&cfg))

	cfg = validConfig()
	cfg.Interfaces = append(cfg.Interfaces, InterfaceCfg{Name: "eth0"})
	assert.Error(t, ConfigValidator(&cfg), "duplicate interface names")

	cfg = validConfig()
	cfg.Interfaces[0].Name = "eth0 with spaces"
	assert.Error(t, ConfigValidator(&cfg))

	cfg = validConfig()
	cfg.Interfaces[0].Groups = []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	assert.Error(t, ConfigValidator(&cfg), "unicast address is not a group")

	cfg = validConfig()
	cfg.Interfaces[0].Groups = []netip.Addr{netip.MustParseAddr("ff02::1")}
	assert.Error(t, ConfigValidator(&cfg), "IPv6 groups are not supported")

	cfg = validConfig()
	cfg.CtlSock = "relative.sock"
	assert.Error(t, ConfigValidator(&cfg))
}

func TestNameValidator(t *testing.T) {
	assert.NoError(t, NameValidator("eth0"))
	assert.NoError(t, NameValidator("br-lan.42"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("a-very-long-interface-name"))
	assert.Error(t, NameValidator("eth0/1"))
}
