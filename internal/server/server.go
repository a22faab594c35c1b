// Package server owns the event transport: a Unix domain socket accepting
// one-line player events from the squeezelite callback, and the matching
// client used by `ampcontrol notify`.
//
// The wire format is a single line "<player>:<0|1>" answered with "OK".
package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives decoded player events. The coordinator implements it.
type Handler interface {
	OnPlayerEvent(player string, started bool)
}

// Server accepts player event connections on a Unix domain socket.
type Server struct {
	path    string
	handler Handler

	ln     net.Listener
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New returns an unstarted server for the given socket path.
func New(path string, handler Handler) *Server {
	return &Server{path: path, handler: handler}
}

// Start binds the socket and begins accepting connections in the
// background. A stale socket file from a previous run is removed first.
// The socket is made world-writable so the player callbacks, which run as
// an unprivileged user, can connect.
func (s *Server) Start() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing stale socket %s: %w", s.path, err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o666); err != nil {
		ln.Close()
		return fmt.Errorf("error setting socket permissions: %w", err)
	}
	s.ln = ln

	slog.Info("event socket listening", "path", s.path)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			slog.Error("error accepting connection", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn reads one event line, dispatches it and acknowledges. Malformed
// messages are logged and the connection is closed without a reply.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		slog.Warn("error reading event", "error", err)
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	player, state, ok := strings.Cut(line, ":")
	if !ok || player == "" || (state != "0" && state != "1") {
		slog.Warn("invalid event message", "message", line)
		return
	}

	s.handler.OnPlayerEvent(player, state == "1")

	if _, err := conn.Write([]byte("OK\n")); err != nil {
		slog.Warn("error sending acknowledgment", "error", err)
	}
}

// Close stops accepting, waits for in-flight connections and removes the
// socket file.
func (s *Server) Close() error {
	s.closed.Store(true)
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.wg.Wait()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
