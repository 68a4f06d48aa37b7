package state

import "time"

var (
	// ConfigPath is set by the root command's persistent flag.
	ConfigPath = "/etc/igmphost/config.yaml"

	DefaultCtlSock = "/var/run/igmphost.sock"

	// CtlTimeout bounds a single control protocol exchange.
	CtlTimeout = time.Second * 5
)
