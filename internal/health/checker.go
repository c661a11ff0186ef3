// Package health provides periodic health checks for the bridge:
// broker connectivity, registry database, and the durable log
// directory.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/scalewatch/scalewatch/internal/infra/sqlite"
)

// Check defines a single health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker with the standard checks. connected
// reports whether the broker connection is currently up.
func NewChecker(db *sqlite.DB, logDir string, connected func() bool) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "broker",
				CheckFn: func(ctx context.Context) error {
					if !connected() {
						return fmt.Errorf("broker connection down")
					}
					return nil
				},
			},
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "log_dir",
				CheckFn: func(ctx context.Context) error {
					return checkLogDir(logDir)
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkLogDir(dir string) error {
	// The daemon creates the directory at startup; not finding it means
	// it disappeared underneath us.
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check log dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
