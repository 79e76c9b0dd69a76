package tracker

import (
	"os"
	"runtime"
	"testing"
	"time"
)

// TestSetupSignalHandler tests that an interrupt cancels the context
func TestSetupSignalHandler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Signal tests not supported on Windows")
	}

	ctx := SetupSignalHandler()

	// Context should not be cancelled initially
	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled initially")
	default:
		// Good
	}

	// Send SIGINT to ourselves
	p, _ := os.FindProcess(os.Getpid())
	p.Signal(os.Interrupt)

	// Wait for context to be cancelled
	select {
	case <-ctx.Done():
		// Good
	case <-time.After(1 * time.Second):
		t.Error("Context should be cancelled after signal")
	}
}
