package state

import (
	"fmt"
	"net/netip"
	"path"
	"regexp"
	"slices"
)

var ifNamePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func NameValidator(s string) error {
	if !ifNamePattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid interface name, must match pattern %s", s, ifNamePattern.String())
	}
	if len(s) > 15 {
		return fmt.Errorf("len(%q) = %d > 15 is too long for an interface name", s, len(s))
	}
	return nil
}

// GroupValidator checks that an address can be joined as an IGMP group.
func GroupValidator(addr netip.Addr) error {
	if !addr.Is4() {
		return fmt.Errorf("%s is not an IPv4 address", addr)
	}
	if !addr.IsMulticast() {
		return fmt.Errorf("%s is not a multicast address", addr)
	}
	return nil
}

func ConfigValidator(cfg *Config) error {
	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("config has no interfaces")
	}
	names := make([]string, 0, len(cfg.Interfaces))
	for _, itf := range cfg.Interfaces {
		if err := NameValidator(itf.Name); err != nil {
			return err
		}
		if slices.Contains(names, itf.Name) {
			return fmt.Errorf("duplicate interface %s", itf.Name)
		}
		names = append(names, itf.Name)
		for _, group := range itf.Groups {
			if err := GroupValidator(group); err != nil {
				return fmt.Errorf("interface %s: %w", itf.Name, err)
			}
		}
		if itf.QueryInterval < 0 || itf.UnsolicitedReportInterval < 0 {
			return fmt.Errorf("interface %s: intervals must not be negative", itf.Name)
		}
	}
	if !path.IsAbs(cfg.CtlSock) {
		return fmt.Errorf("ctl_sock %q must be an absolute path", cfg.CtlSock)
	}
	return nil
}
