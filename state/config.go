package state

import (
	"net/netip"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// InterfaceCfg configures IGMP on one network interface.
type InterfaceCfg struct {
	Name string

	// Groups are joined at startup and held until shutdown.
	Groups []netip.Addr `yaml:",omitempty"`

	// Robustness overrides the protocol robustness variable (default 2).
	Robustness uint8 `yaml:",omitempty"`

	// QueryInterval overrides the assumed querier interval (default
	// 125s) used to size the version compatibility window.
	QueryInterval time.Duration `yaml:"query_interval,omitempty"`

	// UnsolicitedReportInterval overrides the delay between the
	// unsolicited membership reports sent after a join (default 1s).
	UnsolicitedReportInterval time.Duration `yaml:"unsolicited_report_interval,omitempty"`
}

// Config is the daemon configuration, read from YAML.
type Config struct {
	Interfaces []InterfaceCfg

	// CtlSock is the unix socket path the control protocol listens on.
	CtlSock string `yaml:"ctl_sock,omitempty"`

	// LogPath, when set, duplicates the log to this file.
	LogPath string `yaml:"log_path,omitempty"`
}

// ReadConfig loads and expands a config file.
func ReadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}
	ExpandConfig(&cfg)
	return &cfg, nil
}

// ExpandConfig fills in defaults for everything the file left unset.
func ExpandConfig(cfg *Config) {
	if cfg.CtlSock == "" {
		cfg.CtlSock = DefaultCtlSock
	}
}

// Interface returns the config block for the named interface, if any.
func (c *Config) Interface(name string) *InterfaceCfg {
	for i := range c.Interfaces {
		if c.Interfaces[i].Name == name {
			return &c.Interfaces[i]
		}
	}
	return nil
}
