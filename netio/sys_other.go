//go:build !linux

package netio

import "net"

// bindToDevice is best-effort; only Linux offers SO_BINDTODEVICE.
func bindToDevice(net.PacketConn, string) error {
	return nil
}
