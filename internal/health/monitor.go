// Package health watches the data directory and reports whether documents
// can still be written to it.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the state of the watched directory.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Report is a point-in-time copy of the monitor state.
type Report struct {
	Dir              string    `json:"dir"`
	Status           Status    `json:"status"`
	LastCheck        time.Time `json:"last_check"`   // Timestamp of the last probe attempt
	LastHealthy      time.Time `json:"last_healthy"` // Timestamp of the last successful probe
	ConsecutiveFails int       `json:"consecutive_fails"`
	LastError        string    `json:"last_error,omitempty"`
}

// Monitor probes a directory periodically. The directory is marked
// unhealthy after maxFailures consecutive failed probes and healthy again
// after the first successful one.
// Thread-safe: All methods are safe for concurrent access.
type Monitor struct {
	dir         string
	probe       func(dir string) error
	onUnhealthy func(Report) // called on the transition to unhealthy
	interval    time.Duration
	maxFailures int
	log         zerolog.Logger

	mu     sync.RWMutex // protects report
	report Report

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor for dir that probes every interval.
// Probes create and remove a small temporary file in dir.
//
// Example:
//
//	monitor := health.NewMonitor(cfg.DataDir, cfg.HealthInterval, logger)
//	monitor.Start(ctx)
//	defer monitor.Stop()
func NewMonitor(dir string, interval time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		dir:         dir,
		probe:       ProbeDir,
		interval:    interval,
		maxFailures: 3,
		log:         logger,
		report:      Report{Dir: dir, Status: StatusUnknown},
	}
}

// SetOnUnhealthy sets the callback invoked when the directory becomes
// unhealthy. The callback runs on its own goroutine.
func (m *Monitor) SetOnUnhealthy(callback func(Report)) {
	m.onUnhealthy = callback
}

// SetProbe replaces the probe function, mainly for tests.
func (m *Monitor) SetProbe(probe func(dir string) error) {
	m.probe = probe
}

// Start runs one probe immediately and then probes in the background until
// ctx is canceled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.Check()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.log.Debug().Dur("interval", m.interval).Str("dir", m.dir).Msg("health monitor started")
		for {
			select {
			case <-ticker.C:
				m.Check()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends background probing and waits for it to finish.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.log.Debug().Str("dir", m.dir).Msg("health monitor stopped")
}

// Check probes the directory once, updates the state and returns it.
func (m *Monitor) Check() Report {
	err := m.probe(m.dir)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	r := &m.report
	r.LastCheck = now

	if err != nil {
		r.ConsecutiveFails++
		r.LastError = err.Error()
		m.log.Warn().Err(err).
			Str("dir", m.dir).
			Int("attempt", r.ConsecutiveFails).
			Int("max", m.maxFailures).
			Msg("data directory probe failed")

		if r.ConsecutiveFails >= m.maxFailures && r.Status != StatusUnhealthy {
			r.Status = StatusUnhealthy
			m.log.Error().Str("dir", m.dir).Int("failures", r.ConsecutiveFails).Msg("data directory marked unhealthy")
			if m.onUnhealthy != nil {
				go m.onUnhealthy(*r)
			}
		}
		return *r
	}

	if r.Status == StatusUnhealthy {
		m.log.Info().Str("dir", m.dir).Msg("data directory recovered")
	}
	r.Status = StatusHealthy
	r.ConsecutiveFails = 0
	r.LastError = ""
	r.LastHealthy = now
	return *r
}

// Report returns a copy of the current state.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// Healthy reports false only once the directory has been marked unhealthy.
// A monitor that has not probed yet counts as healthy.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report.Status != StatusUnhealthy
}

// ProbeDir checks that dir exists (creating it if needed) and that a file
// can be written to it.
func ProbeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("create probe file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.Write([]byte("ok")); err != nil {
		f.Close()
		return fmt.Errorf("write probe file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close probe file: %w", err)
	}
	return nil
}
