package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Database file should exist after open.
	_, err = os.Stat(dbPath)
	require.NoError(t, err)
	return s
}

func testRecord(userID string) *models.CredentialRecord {
	return &models.CredentialRecord{
		UserID: userID,
		AccessToken: models.EncryptedToken{
			Ciphertext: []byte("access-ct"),
			Nonce:      []byte("access-nonce"),
			Tag:        []byte("access-tag"),
		},
		RefreshToken: models.EncryptedToken{
			Ciphertext: []byte("refresh-ct"),
			Nonce:      []byte("refresh-nonce"),
			Tag:        []byte("refresh-tag"),
		},
		Expiry:    time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
		Scope:     []string{"analytics.readonly", "webmasters.readonly"},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	record, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestSQLiteStoreUpsertAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	record := testRecord("user-1")
	require.NoError(t, s.Upsert(ctx, record))

	got, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, record.UserID, got.UserID)
	require.Equal(t, record.AccessToken, got.AccessToken)
	require.Equal(t, record.RefreshToken, got.RefreshToken)
	require.True(t, record.Expiry.Equal(got.Expiry))
	require.Equal(t, record.Scope, got.Scope)
}

func TestSQLiteStoreUpsertReplaces(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testRecord("user-1")))

	updated := testRecord("user-1")
	updated.AccessToken.Ciphertext = []byte("new-access-ct")
	updated.Expiry = updated.Expiry.Add(30 * time.Minute)
	require.NoError(t, s.Upsert(ctx, updated))

	got, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []byte("new-access-ct"), got.AccessToken.Ciphertext)
	require.True(t, updated.Expiry.Equal(got.Expiry))

	// Still exactly one record for the user.
	stats := s.Stats()
	require.Equal(t, 1, stats.CredentialCount)
}

func TestSQLiteStoreUpsertRejectsPartialRecord(t *testing.T) {
	s := newTestSQLiteStore(t)

	record := testRecord("user-1")
	record.RefreshToken = models.EncryptedToken{}
	require.Error(t, s.Upsert(context.Background(), record))
}

func TestSQLiteStoreDelete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testRecord("user-1")))
	require.NoError(t, s.Delete(ctx, "user-1"))

	got, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, got)

	// Idempotent.
	require.NoError(t, s.Delete(ctx, "user-1"))
}

func TestSQLiteStoreList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testRecord("user-b")))
	require.NoError(t, s.Upsert(ctx, testRecord("user-a")))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "user-a", records[0].UserID)
	require.Equal(t, "user-b", records[1].UserID)
}

func TestSQLiteStoreAuditEvents(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := logging.NewAuditEvent(logging.TokenRead, "read", logging.StatusSuccess).WithUserID("user-1")
	first.Timestamp = time.Now().Add(-time.Minute).UTC()
	second := logging.NewAuditEvent(logging.TokenRefresh, "refresh", logging.StatusFailure).
		WithUserID("user-1").
		WithDetails(map[string]interface{}{"status_code": 503})

	require.NoError(t, s.SaveAuditEvent(first))
	require.NoError(t, s.SaveAuditEvent(second))

	events, err := s.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, logging.TokenRefresh, events[0].EventType)
	require.Equal(t, float64(503), events[0].Details["status_code"])
	require.Equal(t, logging.TokenRead, events[1].EventType)

	limited, err := s.ListAuditEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), testRecord("user-1")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSQLiteStorePruneAuditEvents(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	old := logging.NewAuditEvent(logging.TokenRead, "read token", logging.StatusSuccess)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.SaveAuditEvent(old))
	require.NoError(t, s.SaveAuditEvent(logging.NewAuditEvent(logging.TokenRefresh, "refresh token", logging.StatusSuccess)))

	pruned, err := s.PruneAuditEvents(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	events, err := s.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, logging.TokenRefresh, events[0].EventType)

	// Pruning again removes nothing.
	pruned, err = s.PruneAuditEvents(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, pruned)
}
