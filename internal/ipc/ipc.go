// Package ipc is the local control channel between the wayclip daemon and
// short-lived CLI invocations (toggle, dump, clear, status).
//
// The channel is plain gRPC served over a Unix domain socket in
// $XDG_RUNTIME_DIR. The service is declared by hand and carried with a JSON
// codec, so no generated code is involved. Exactly one daemon listens on
// the socket; Listen refuses to replace a live one.
package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Listen when a daemon already answers
	// on the socket.
	ErrAlreadyRunning = errors.New("wayclip daemon is already running")
	// ErrNotRunning is returned by Dial and client calls when no daemon
	// listens on the socket.
	ErrNotRunning = errors.New("wayclip daemon is not running")
)

const liveCheckTimeout = time.Second

// SocketPath returns the path of the control socket:
// $WAYCLIP_SOCKET if set, else $XDG_RUNTIME_DIR/wayclip.sock, falling back
// to the temp dir when XDG_RUNTIME_DIR is unset.
func SocketPath() string {
	if s := os.Getenv("WAYCLIP_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "wayclip.sock")
	}
	return filepath.Join(os.TempDir(), "wayclip.sock")
}

// IsRunning reports whether a daemon appears to be listening on path. It
// does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, liveCheckTimeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates the control socket at path. A stale socket file from a
// crashed run is removed; a live one yields ErrAlreadyRunning.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("%w (socket %s)", ErrAlreadyRunning, path)
	}
	_ = os.Remove(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return ln, nil
}
