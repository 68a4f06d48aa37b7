package netio

import (
	"net"

	"golang.org/x/sys/unix"
)

// bindToDevice restricts the raw socket to one interface, so multi-homed
// hosts keep per-link IGMP state separate.
func bindToDevice(pc net.PacketConn, name string) error {
	sc, err := pc.(*net.IPConn).SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = sc.Control(func(fd uintptr) {
		serr = unix.BindToDevice(int(fd), name)
	})
	if err != nil {
		return err
	}
	return serr
}
