package core

import (
	"fmt"

	"github.com/netlayer/igmphost/igmp"
	"github.com/netlayer/igmphost/netio"
	"github.com/netlayer/igmphost/state"
)

// Membership opens one link per configured interface, applies the
// per-interface protocol overrides and joins the static groups.
type Membership struct {
	links []*netio.Link
}

func (m *Membership) Init(s *state.State) error {
	for _, itf := range s.Cfg.Interfaces {
		link, err := netio.Open(itf.Name, s.Log)
		if err != nil {
			return fmt.Errorf("open %s: %w", itf.Name, err)
		}
		m.links = append(m.links, link)
		s.Links[itf.Name] = link

		s.Engine.ConfigureLink(link.ID(), igmp.LinkConfig{
			Robustness:                itf.Robustness,
			QueryInterval:             itf.QueryInterval,
			UnsolicitedReportInterval: itf.UnsolicitedReportInterval,
		})

		for _, group := range itf.Groups {
			if err := s.Engine.Join(link.ID(), link, group); err != nil {
				return fmt.Errorf("join %s on %s: %w", group, itf.Name, err)
			}
			s.Log.Info("joined static group", "interface", itf.Name, "group", group)
		}

		go link.Serve(s.Engine, link.ID())
	}
	return nil
}

func (m *Membership) Cleanup(s *state.State) error {
	// Leave whatever is still joined so routers hear the departures,
	// then tear the sockets down.
	for name, link := range s.Links {
		info, ok := s.Engine.Info(link.ID())
		if !ok {
			continue
		}
		for _, g := range info.Groups {
			for range g.JoinCount {
				if err := s.Engine.Leave(link.ID(), g.Group); err != nil {
					s.Log.Warn("leave failed", "interface", name, "group", g.Group, "error", err)
					break
				}
			}
		}
	}
	var firstErr error
	for _, link := range m.links {
		if err := link.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
