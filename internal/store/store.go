package store

import (
	"context"
	"time"

	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/models"
)

// RecordStore is the persistence boundary for encrypted credential records.
// Records are keyed uniquely by user ID; Upsert is a blind overwrite, so the
// last writer wins and no compare-and-swap is needed on the refresh path.
type RecordStore interface {
	// Get returns the record for a user, or nil (with nil error) when the
	// user has never connected the integration.
	Get(ctx context.Context, userID string) (*models.CredentialRecord, error)

	// Upsert inserts or replaces the full record for record.UserID.
	Upsert(ctx context.Context, record *models.CredentialRecord) error

	// Delete removes the record for a user. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, userID string) error

	// List returns all stored records. Cipher fields stay encrypted.
	List(ctx context.Context) ([]*models.CredentialRecord, error)

	// Audit trail
	SaveAuditEvent(event *logging.AuditEvent) error
	ListAuditEvents(ctx context.Context, limit int) ([]*logging.AuditEvent, error)

	// PruneAuditEvents deletes audit events older than the cutoff and
	// returns how many were removed.
	PruneAuditEvents(ctx context.Context, before time.Time) (int64, error)

	// Management
	Stats() StoreStats
	Close() error
}

// StoreStats provides statistics about the store contents.
type StoreStats struct {
	CredentialCount int `json:"credential_count"`
	AuditEventCount int `json:"audit_event_count"`
}
