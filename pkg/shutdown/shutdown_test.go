package shutdown

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestShutdownWithTimeout(t *testing.T) {
	logger := zerolog.Nop()
	shutdown := NewShutdown(logger)

	quickCompleted := false
	slowCompleted := false
	timeoutOccurred := false

	shutdown.HookShutdownCallback("quick", func() {
		time.Sleep(50 * time.Millisecond)
		quickCompleted = true
	}, 1*time.Second)

	shutdown.HookShutdownCallback("slow", func() {
		time.Sleep(2 * time.Second)
		slowCompleted = true
	}, 100*time.Millisecond)

	shutdown.HookShutdownCallback("timeout-detector", func() {
		time.Sleep(200 * time.Millisecond)
		timeoutOccurred = true
	}, 50*time.Millisecond)

	shutdown.ShutdownNow()

	if !quickCompleted {
		t.Error("quick callback should have completed")
	}
	if slowCompleted {
		t.Error("slow callback should not have completed due to timeout")
	}
	if timeoutOccurred {
		t.Error("timeout detector should not have completed due to timeout")
	}
}

func TestShutdownWithoutTimeout(t *testing.T) {
	logger := zerolog.Nop()
	shutdown := NewShutdown(logger)

	completed := false

	shutdown.HookShutdownCallback("no-timeout", func() {
		time.Sleep(100 * time.Millisecond)
		completed = true
	}, 0)

	shutdown.ShutdownNow()

	if !completed {
		t.Error("callback without timeout should have completed")
	}
}
