package lifecycle

import "testing"

func TestShutdownFlag(t *testing.T) {
	t.Cleanup(func() { SetShuttingDown(false) })

	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true before any shutdown signal")
	}

	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false while draining")
	}

	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after the flag was cleared")
	}
}
