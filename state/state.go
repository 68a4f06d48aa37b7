package state

import (
	"context"
	"log/slog"

	"github.com/netlayer/igmphost/igmp"
	"github.com/netlayer/igmphost/netio"
)

// Module is a unit of the daemon with a managed lifetime.
type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

type State struct {
	*Env
	Modules map[string]Module
}

// Env is the shared runtime handed to every module.
type Env struct {
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
	Cfg     Config

	Engine *igmp.Engine

	// Links maps interface name to its opened link.
	Links map[string]*netio.Link
}

// LinkByName returns the opened link for the named interface.
func (e *Env) LinkByName(name string) (*netio.Link, bool) {
	l, ok := e.Links[name]
	return l, ok
}
