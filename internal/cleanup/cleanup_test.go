package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/store"
)

type countingMetrics struct {
	pruned int64
}

func (c *countingMetrics) RecordAuditEventsPruned(count int64) {
	c.pruned += count
}

func seedAuditEvents(t *testing.T, s store.RecordStore, ages ...time.Duration) {
	t.Helper()
	now := time.Now().UTC()
	for _, age := range ages {
		event := logging.NewAuditEvent(logging.CredentialPersist, "store credential", logging.StatusSuccess).
			WithUserID("user-1")
		event.Timestamp = now.Add(-age)
		require.NoError(t, s.SaveAuditEvent(event))
	}
}

func TestRunCleanupPrunesOldEvents(t *testing.T) {
	s := store.NewMemoryStore()
	seedAuditEvents(t, s, 100*24*time.Hour, 95*24*time.Hour, time.Hour)

	metrics := &countingMetrics{}
	m := NewManager(Config{Interval: time.Hour, Retention: 90 * 24 * time.Hour}, s, metrics)

	pruned, err := m.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
	assert.Equal(t, int64(2), metrics.pruned)
	assert.Equal(t, 1, s.Stats().AuditEventCount)
}

func TestRunCleanupKeepsRecentEvents(t *testing.T) {
	s := store.NewMemoryStore()
	seedAuditEvents(t, s, time.Minute, time.Hour)

	m := NewManager(DefaultConfig(), s, nil)

	pruned, err := m.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned)
	assert.Equal(t, 2, s.Stats().AuditEventCount)
}

func TestRunCleanupUpdatesStats(t *testing.T) {
	s := store.NewMemoryStore()
	seedAuditEvents(t, s, 100*24*time.Hour)

	m := NewManager(DefaultConfig(), s, nil)

	_, err := m.RunCleanup(context.Background())
	require.NoError(t, err)

	stats := m.GetStats()
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, int64(1), stats.TotalPrunedCount)
	assert.Equal(t, int64(1), stats.LastRunPruned)
	assert.False(t, stats.LastRunAt.IsZero())
}

func TestStartStop(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(Config{Interval: time.Minute, Retention: time.Hour}, s, nil)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsRunning())

	require.Error(t, m.Start(context.Background()))

	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Stop())
}

func TestStartDisabledWithoutRetention(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(Config{Interval: time.Minute}, s, nil)

	require.NoError(t, m.Start(context.Background()))
	assert.False(t, m.IsRunning())
}
