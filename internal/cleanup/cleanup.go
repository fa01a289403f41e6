package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/store"
)

// MetricsRecorder defines the interface for recording cleanup metrics.
type MetricsRecorder interface {
	RecordAuditEventsPruned(count int64)
}

// Config contains the cleanup manager configuration.
type Config struct {
	Interval  time.Duration `json:"interval"`
	Retention time.Duration `json:"retention"`
}

// DefaultConfig returns a cleanup configuration with hourly runs and
// 90 days of audit retention.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Hour,
		Retention: 90 * 24 * time.Hour,
	}
}

// Stats contains cleanup statistics.
type Stats struct {
	TotalRuns        int           `json:"total_runs"`
	TotalPrunedCount int64         `json:"total_pruned_count"`
	LastRunAt        time.Time     `json:"last_run_at"`
	LastRunDuration  time.Duration `json:"last_run_duration"`
	LastRunPruned    int64         `json:"last_run_pruned"`
}

// Manager prunes old audit events on a fixed interval so the audit log
// does not grow without bound.
type Manager struct {
	store   store.RecordStore
	config  Config
	metrics MetricsRecorder
	logger  *logging.Logger

	ticker  *time.Ticker
	done    chan struct{}
	running bool
	mu      sync.Mutex

	statsMu sync.RWMutex
	stats   Stats
}

// NewManager creates a new cleanup manager.
func NewManager(config Config, recordStore store.RecordStore, metrics MetricsRecorder) *Manager {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &Manager{
		store:   recordStore,
		config:  config,
		metrics: metrics,
		logger:  logging.NewLogger(logging.WithService("cleanup")),
		done:    make(chan struct{}),
	}
}

// Start starts the periodic cleanup loop. A zero or negative retention
// disables pruning entirely.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("cleanup manager is already running")
	}
	if m.config.Retention <= 0 {
		return nil
	}

	m.running = true
	m.ticker = time.NewTicker(m.config.Interval)
	go m.runLoop(ctx)
	return nil
}

// Stop stops the cleanup manager gracefully.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	m.ticker.Stop()
	close(m.done)
	return nil
}

func (m *Manager) runLoop(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-m.ticker.C:
			if _, err := m.RunCleanup(ctx); err != nil {
				m.logger.Error("audit retention cleanup failed", "error", err.Error())
			}
		}
	}
}

// RunCleanup performs one pruning pass immediately and returns how many
// audit events were removed.
func (m *Manager) RunCleanup(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := start.Add(-m.config.Retention)

	pruned, err := m.store.PruneAuditEvents(ctx, cutoff)
	duration := time.Since(start)

	m.statsMu.Lock()
	m.stats.TotalRuns++
	m.stats.LastRunAt = start
	m.stats.LastRunDuration = duration
	if err == nil {
		m.stats.LastRunPruned = pruned
		m.stats.TotalPrunedCount += pruned
	}
	m.statsMu.Unlock()

	if err != nil {
		return 0, err
	}

	if m.metrics != nil {
		m.metrics.RecordAuditEventsPruned(pruned)
	}
	if pruned > 0 {
		m.logger.Info("pruned old audit events", "pruned", pruned, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return pruned, nil
}

// GetStats returns the current cleanup statistics.
func (m *Manager) GetStats() Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// IsRunning returns whether the cleanup manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
