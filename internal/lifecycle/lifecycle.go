// Package lifecycle tracks whether the process is draining. The flag flips
// on SIGTERM/SIGINT, before the HTTP server stops accepting connections, so
// load balancers polling /health see 503 and stop routing new traffic.
package lifecycle

import "sync/atomic"

var draining atomic.Bool

// SetShuttingDown marks the process as draining (or clears the mark).
func SetShuttingDown(v bool) { draining.Store(v) }

// IsShuttingDown reports whether the process is draining and should not
// receive new traffic.
func IsShuttingDown() bool { return draining.Load() }
