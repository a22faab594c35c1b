package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// Notify delivers a single player event to a running daemon and waits for
// the acknowledgment. It is the Go side of the squeezelite callback.
func Notify(path, player string, started bool, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return fmt.Errorf("error connecting to daemon at %s (is it running?): %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	state := 0
	if started {
		state = 1
	}
	if _, err := fmt.Fprintf(conn, "%s:%d\n", player, state); err != nil {
		return fmt.Errorf("error sending event: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading acknowledgment: %w", err)
	}
	if strings.TrimSpace(reply) != "OK" {
		return fmt.Errorf("unexpected response from daemon: %q", strings.TrimSpace(reply))
	}
	return nil
}
