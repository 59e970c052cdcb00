// Package ipc locates and opens the daemon's local socket. One socket
// carries both the UI shell protocol (newline-delimited JSON) and the gRPC
// control service used by the CLI; the daemon tells them apart by the
// first bytes of each connection.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// SocketEnv overrides the socket path.
const SocketEnv = "CLIPDRAG_SOCKET"

const socketName = "clipdrag.sock"

// SocketPath returns the platform-appropriate path for the IPC socket:
// $CLIPDRAG_SOCKET if set, otherwise a per-user runtime directory
// (see socketDir).
func SocketPath() string {
	if s := os.Getenv(SocketEnv); s != "" {
		return s
	}
	return filepath.Join(socketDir(), socketName)
}

// IsRunning reports whether a clipdrag daemon appears to be listening on
// path. It does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a net.Listener on path, removing a stale socket file left
// by a crashed run. It refuses to steal the socket of a live daemon.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("listen %s: another clipdrag daemon is running", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	restrict(path)
	return ln, nil
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return c, nil
}
