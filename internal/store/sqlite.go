package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sitepulse/tokenvault/internal/errors"
	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides a SQLite-backed RecordStore with WAL mode.
// It is thread-safe and supports concurrent access.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.NewLogger(),
	}, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS credentials (
					user_id TEXT PRIMARY KEY,
					access_ciphertext BLOB NOT NULL,
					access_nonce BLOB NOT NULL,
					access_tag BLOB NOT NULL,
					refresh_ciphertext BLOB NOT NULL,
					refresh_nonce BLOB NOT NULL,
					refresh_tag BLOB NOT NULL,
					expiry DATETIME NOT NULL,
					scope TEXT,
					updated_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_credentials_expiry ON credentials(expiry);
			`,
		},
		{
			version: 2,
			up: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					timestamp DATETIME NOT NULL,
					event_type TEXT NOT NULL,
					user_id TEXT,
					action TEXT NOT NULL,
					status TEXT NOT NULL,
					correlation_id TEXT,
					details TEXT,
					error_message TEXT
				);
				CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
				CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id);
			`,
		},
	}

	for _, migration := range migrations {
		if migration.version <= currentVersion {
			continue
		}
		if _, err := db.Exec(migration.up); err != nil {
			return &errors.ErrDatabaseMigration{Version: migration.version, Err: err}
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			return &errors.ErrDatabaseMigration{Version: migration.version, Err: err}
		}
	}

	return nil
}

// Get returns the record for a user, or nil when no record exists.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	const query = `
		SELECT user_id,
		       access_ciphertext, access_nonce, access_tag,
		       refresh_ciphertext, refresh_nonce, refresh_tag,
		       expiry, scope, updated_at
		FROM credentials
		WHERE user_id = ?
	`

	var record models.CredentialRecord
	var expiry, updatedAt string
	var scope sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&record.UserID,
		&record.AccessToken.Ciphertext,
		&record.AccessToken.Nonce,
		&record.AccessToken.Tag,
		&record.RefreshToken.Ciphertext,
		&record.RefreshToken.Nonce,
		&record.RefreshToken.Tag,
		&expiry,
		&scope,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get credential", Err: err}
	}

	if record.Expiry, err = parseStoredTime(expiry); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "parse expiry", Err: err}
	}
	if record.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "parse updated_at", Err: err}
	}
	if scope.Valid && scope.String != "" {
		if err := json.Unmarshal([]byte(scope.String), &record.Scope); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "parse scope", Err: err}
		}
	}

	return &record, nil
}

// Upsert inserts or replaces the full record keyed by user_id.
func (s *SQLiteStore) Upsert(ctx context.Context, record *models.CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	scopeJSON := ""
	if len(record.Scope) > 0 {
		data, err := json.Marshal(record.Scope)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "encode scope", Err: err}
		}
		scopeJSON = string(data)
	}

	const query = `
		INSERT INTO credentials
			(user_id,
			 access_ciphertext, access_nonce, access_tag,
			 refresh_ciphertext, refresh_nonce, refresh_tag,
			 expiry, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_ciphertext = excluded.access_ciphertext,
			access_nonce = excluded.access_nonce,
			access_tag = excluded.access_tag,
			refresh_ciphertext = excluded.refresh_ciphertext,
			refresh_nonce = excluded.refresh_nonce,
			refresh_tag = excluded.refresh_tag,
			expiry = excluded.expiry,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.UserID,
		record.AccessToken.Ciphertext,
		record.AccessToken.Nonce,
		record.AccessToken.Tag,
		record.RefreshToken.Ciphertext,
		record.RefreshToken.Nonce,
		record.RefreshToken.Tag,
		record.Expiry.UTC().Format(time.RFC3339Nano),
		scopeJSON,
		record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert credential", Err: err}
	}
	return nil
}

// Delete removes the record for a user.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete credential", Err: err}
	}
	return nil
}

// List returns all stored records, cipher fields still encrypted.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.CredentialRecord, error) {
	const query = `
		SELECT user_id,
		       access_ciphertext, access_nonce, access_tag,
		       refresh_ciphertext, refresh_nonce, refresh_tag,
		       expiry, scope, updated_at
		FROM credentials
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list credentials", Err: err}
	}
	defer rows.Close()

	var result []*models.CredentialRecord
	for rows.Next() {
		var record models.CredentialRecord
		var expiry, updatedAt string
		var scope sql.NullString

		if err := rows.Scan(
			&record.UserID,
			&record.AccessToken.Ciphertext,
			&record.AccessToken.Nonce,
			&record.AccessToken.Tag,
			&record.RefreshToken.Ciphertext,
			&record.RefreshToken.Nonce,
			&record.RefreshToken.Tag,
			&expiry,
			&scope,
			&updatedAt,
		); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan credential", Err: err}
		}

		if record.Expiry, err = parseStoredTime(expiry); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "parse expiry", Err: err}
		}
		if record.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "parse updated_at", Err: err}
		}
		if scope.Valid && scope.String != "" {
			if err := json.Unmarshal([]byte(scope.String), &record.Scope); err != nil {
				return nil, &errors.ErrDatabaseQuery{Operation: "parse scope", Err: err}
			}
		}

		result = append(result, &record)
	}
	return result, rows.Err()
}

// SaveAuditEvent persists an audit event.
func (s *SQLiteStore) SaveAuditEvent(event *logging.AuditEvent) error {
	detailsJSON := ""
	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "encode audit details", Err: err}
		}
		detailsJSON = string(data)
	}

	const query = `
		INSERT INTO audit_log
			(id, timestamp, event_type, user_id, action, status, correlation_id, details, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		event.ID,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(event.EventType),
		event.UserID,
		event.Action,
		string(event.Status),
		event.CorrelationID,
		detailsJSON,
		event.ErrorMessage,
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "save audit event", Err: err}
	}
	return nil
}

// ListAuditEvents returns up to limit events, newest first.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, limit int) ([]*logging.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT id, timestamp, event_type, user_id, action, status, correlation_id, details, error_message
		FROM audit_log
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list audit events", Err: err}
	}
	defer rows.Close()

	var result []*logging.AuditEvent
	for rows.Next() {
		var event logging.AuditEvent
		var timestamp, eventType, status string
		var details sql.NullString

		if err := rows.Scan(
			&event.ID,
			&timestamp,
			&eventType,
			&event.UserID,
			&event.Action,
			&status,
			&event.CorrelationID,
			&details,
			&event.ErrorMessage,
		); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan audit event", Err: err}
		}

		if event.Timestamp, err = parseStoredTime(timestamp); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "parse audit timestamp", Err: err}
		}
		event.EventType = logging.AuditEventType(eventType)
		event.Status = logging.AuditStatus(status)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, &errors.ErrDatabaseQuery{Operation: "parse audit details", Err: err}
			}
		}

		result = append(result, &event)
	}
	return result, rows.Err()
}

// PruneAuditEvents deletes audit events older than the cutoff.
func (s *SQLiteStore) PruneAuditEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE timestamp < ?`,
		before.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "prune audit events", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "prune audit events", Err: err}
	}
	return deleted, nil
}

// Stats returns statistics about the store contents.
func (s *SQLiteStore) Stats() StoreStats {
	var stats StoreStats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&stats.CredentialCount); err != nil {
		s.logger.Error("failed to count credentials", "error", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&stats.AuditEventCount); err != nil {
		s.logger.Error("failed to count audit events", "error", err.Error())
	}
	return stats
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseStoredTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
