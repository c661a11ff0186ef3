package health

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/scalewatch/scalewatch/internal/infra/sqlite"
)

func newTestChecker(t *testing.T, connected bool) *Checker {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChecker(db, t.TempDir(), func() bool { return connected })
}

func TestChecker_AllHealthy(t *testing.T) {
	c := newTestChecker(t, true)
	c.runAll(context.Background())

	if !c.IsHealthy() {
		t.Fatalf("IsHealthy() = false, statuses: %+v", c.Statuses())
	}
	if len(c.Statuses()) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(c.Statuses()))
	}
}

func TestChecker_BrokerDown(t *testing.T) {
	c := newTestChecker(t, false)
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Fatal("IsHealthy() = true with broker down")
	}
	for _, s := range c.Statuses() {
		if s.Name == "broker" && s.Healthy {
			t.Error("broker check should fail when disconnected")
		}
		if s.Name == "sqlite" && !s.Healthy {
			t.Errorf("sqlite check should still pass: %s", s.Error)
		}
	}
}

func TestChecker_MissingLogDirUnhealthy(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// The daemon creates the log directory at startup, so a path that
	// does not exist means it vanished.
	gone := filepath.Join(t.TempDir(), "vanished")
	c := NewChecker(db, gone, func() bool { return true })
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Fatal("IsHealthy() = true with the log directory missing")
	}
	for _, s := range c.Statuses() {
		if s.Name == "log_dir" && s.Healthy {
			t.Error("log_dir check should fail when the directory is missing")
		}
	}
}

func TestChecker_StatusesEmptyBeforeRun(t *testing.T) {
	c := newTestChecker(t, true)
	if got := c.Statuses(); len(got) != 0 {
		t.Fatalf("Statuses() before Run = %d entries, want 0", len(got))
	}
	// No checks recorded yet means nothing has failed.
	if !c.IsHealthy() {
		t.Fatal("IsHealthy() should be vacuously true before first run")
	}
}
