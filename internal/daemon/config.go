// Package daemon exposes the running service to local CLI clients over
// a Unix domain socket, so one-shot commands reuse the warm index and
// embedder instead of rebuilding them per invocation.
package daemon

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	// SocketFileName is the socket file created inside the data dir.
	SocketFileName = "brainmcp.sock"

	// PIDFileName is the PID file created inside the data dir.
	PIDFileName = "brainmcp.pid"
)

// Config holds configuration for the socket server and its clients.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath stores the serving process ID.
	PIDPath string

	// Timeout bounds one client-daemon exchange. Default 30s.
	Timeout time.Duration

	// ShutdownGracePeriod is how long active connections get to finish
	// on shutdown. Default 10s.
	ShutdownGracePeriod time.Duration
}

// ConfigForDataDir returns a Config rooted in the service's data dir.
func ConfigForDataDir(dataDir string) Config {
	return Config{
		SocketPath:          filepath.Join(dataDir, SocketFileName),
		PIDPath:             filepath.Join(dataDir, PIDFileName),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
