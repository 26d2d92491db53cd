package lifecycle

import "sync"

var (
	mu       sync.Mutex
	draining = make(chan struct{})
	down     bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true, and long-lived
// loading streams end so the server can drain.
func SetShuttingDown(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if v == down {
		return
	}
	down = v
	if v {
		close(draining)
	} else {
		draining = make(chan struct{})
	}
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	mu.Lock()
	defer mu.Unlock()
	return down
}

// Draining returns a channel closed once shutdown begins. Streams select on it to finish
// before the in-flight wait times out.
func Draining() <-chan struct{} {
	mu.Lock()
	defer mu.Unlock()
	return draining
}
