package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/netlayer/igmphost/state"
)

// Control serves the line-oriented control protocol on a unix socket.
// Each connection carries one command line; the response is terminated
// by a NUL byte.
type Control struct {
	ln net.Listener
}

func (c *Control) Init(s *state.State) error {
	// A previous run may have left the socket behind.
	if err := os.Remove(s.Cfg.CtlSock); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", s.Cfg.CtlSock)
	if err != nil {
		return err
	}
	c.ln = ln
	go c.serve(s)
	return nil
}

func (c *Control) Cleanup(s *state.State) error {
	err := c.ln.Close()
	os.Remove(s.Cfg.CtlSock)
	return err
}

func (c *Control) serve(s *state.State) {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Log.Warn("control accept failed", "error", err)
			continue
		}
		go func() {
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(state.CtlTimeout))
			if err := handleControl(s, conn); err != nil {
				s.Log.Debug("control request failed", "error", err)
			}
		}()
	}
}

func handleControl(s *state.State, conn net.Conn) error {
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	line, err := rw.ReadString('\n')
	if err != nil {
		return err
	}

	reply, err := dispatchControl(s, strings.Fields(strings.TrimSpace(line)))
	if err != nil {
		reply = fmt.Sprintf("error: %s\n", err)
	}
	if _, err := rw.WriteString(reply); err != nil {
		return err
	}
	if err := rw.WriteByte(0); err != nil {
		return err
	}
	return rw.Flush()
}

func dispatchControl(s *state.State, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty command")
	}
	switch args[0] {
	case "join", "leave":
		if len(args) != 3 {
			return "", fmt.Errorf("usage: %s <interface> <group>", args[0])
		}
		group, err := netip.ParseAddr(args[2])
		if err != nil {
			return "", err
		}
		if err := state.GroupValidator(group); err != nil {
			return "", err
		}
		link, ok := s.LinkByName(args[1])
		if !ok {
			return "", fmt.Errorf("unknown interface %s", args[1])
		}
		if args[0] == "join" {
			err = s.Engine.Join(link.ID(), link, group)
		} else {
			err = s.Engine.Leave(link.ID(), group)
		}
		if err != nil {
			return "", err
		}
		return "ok\n", nil
	case "status":
		return statusReport(s), nil
	default:
		return "", fmt.Errorf("unknown command %s", args[0])
	}
}

func statusReport(s *state.State) string {
	names := make([]string, 0, len(s.Links))
	for name := range s.Links {
		names = append(names, name)
	}
	slices.Sort(names)

	sb := strings.Builder{}
	for _, name := range names {
		link := s.Links[name]
		sb.WriteString(fmt.Sprintf("%s:\n", name))

		info, ok := s.Engine.Info(link.ID())
		if !ok {
			sb.WriteString("  (no membership state)\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("  Mode: %s\n", info.Mode))
		sb.WriteString(fmt.Sprintf("  Robustness: %d\n", info.Robustness))

		sb.WriteString("  Groups:\n")
		if len(info.Groups) == 0 {
			sb.WriteString("    (none)\n")
		}
		for _, g := range info.Groups {
			sb.WriteString(fmt.Sprintf("    - %s joins=%d", g.Group, g.JoinCount))
			if g.LastReporter {
				sb.WriteString(" last-reporter")
			}
			sb.WriteString("\n")
		}

		sb.WriteString("  Queriers:\n")
		queriers := link.Queriers()
		if len(queriers) == 0 {
			sb.WriteString("    (none)\n")
		}
		qs := make([]string, 0, len(queriers))
		for _, q := range queriers {
			qs = append(qs, fmt.Sprintf("    - %s (%s)", q.Addr, q.Version))
		}
		slices.Sort(qs)
		sb.WriteString(strings.Join(qs, "\n"))
		if len(qs) > 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// CtlRequest sends one command line to a running daemon and returns its
// response.
func CtlRequest(sock, cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", sock, state.CtlTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(state.CtlTimeout))

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if _, err := rw.WriteString(cmd + "\n"); err != nil {
		return "", err
	}
	if err := rw.Flush(); err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	res = strings.TrimSuffix(res, "\x00")
	if rest, ok := strings.CutPrefix(res, "error: "); ok {
		return "", errors.New(strings.TrimSpace(rest))
	}
	return res, nil
}
