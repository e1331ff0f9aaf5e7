// Package peer implements the rig side of the link: a TCP server that decodes command lines
// and hands them to an actuator.
package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gwillem/armlink/pkg/command"
)

// Actuator executes decoded commands.
type Actuator interface {
	Apply(ctx context.Context, cmd command.Command) error
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, cmd command.Command) error

func (f ActuatorFunc) Apply(ctx context.Context, cmd command.Command) error {
	return f(ctx, cmd)
}

// Server serves one client at a time. A second client waits in the accept backlog until the
// first one leaves.
type Server struct {
	codec  *command.Codec
	act    Actuator
	logger *slog.Logger

	// Silent suppresses replies.
	Silent bool
	// IdleTimeout closes a client that sends nothing for this long. Zero disables it.
	IdleTimeout time.Duration

	mu      sync.Mutex
	ln      net.Listener
	clients int
}

// NewServer creates a server applying decoded commands to act.
func NewServer(codec *command.Codec, act Actuator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{codec: codec, act: act, logger: logger}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Clients returns the number of clients served so far.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// Serve accepts clients on ln until ctx is done. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.logger.Info("listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.clients++
		s.mu.Unlock()

		s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Info("client connected", "remote", remote)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := s.apply(ctx, line)
		if s.Silent {
			continue
		}
		if _, err := fmt.Fprintf(conn, "%s\n", reply); err != nil {
			s.logger.Warn("reply failed", "remote", remote, "err", err)
			break
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("client read", "remote", remote, "err", err)
	}
	s.logger.Info("client disconnected", "remote", remote)
}

func (s *Server) apply(ctx context.Context, line string) string {
	cmd, err := s.codec.Decode(line)
	if err != nil {
		s.logger.Warn("bad command", "line", line, "err", err)
		return "ERR unknown command"
	}
	if err := s.act.Apply(ctx, cmd); err != nil {
		s.logger.Error("apply failed", "cmd", cmd.String(), "err", err)
		return "ERR " + err.Error()
	}
	s.logger.Debug("applied", "cmd", cmd.String())
	return "OK " + line
}
