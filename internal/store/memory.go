package store

import (
	"context"
	"sync"
	"time"

	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/models"
)

// MemoryStore provides an in-memory RecordStore. It is thread-safe and used
// for tests and ephemeral runs; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*models.CredentialRecord
	audit       []*logging.AuditEvent
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*models.CredentialRecord),
	}
}

// Get returns a copy of the stored record so callers cannot mutate store state.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.credentials[userID]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// Upsert validates and stores the record, replacing any previous one.
func (s *MemoryStore) Upsert(ctx context.Context, record *models.CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.credentials[record.UserID] = &clone
	return nil
}

// Delete removes the record for a user.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, userID)
	return nil
}

// List returns all stored records.
func (s *MemoryStore) List(ctx context.Context) ([]*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.CredentialRecord, 0, len(s.credentials))
	for _, record := range s.credentials {
		clone := *record
		result = append(result, &clone)
	}
	return result, nil
}

// SaveAuditEvent appends an audit event.
func (s *MemoryStore) SaveAuditEvent(event *logging.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, event)
	return nil
}

// ListAuditEvents returns up to limit events, newest first.
func (s *MemoryStore) ListAuditEvents(ctx context.Context, limit int) ([]*logging.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.audit) {
		limit = len(s.audit)
	}

	result := make([]*logging.AuditEvent, 0, limit)
	for i := len(s.audit) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.audit[i])
	}
	return result, nil
}

// PruneAuditEvents deletes audit events older than the cutoff.
func (s *MemoryStore) PruneAuditEvents(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.audit[:0]
	var deleted int64
	for _, event := range s.audit {
		if event.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	s.audit = kept
	return deleted, nil
}

// Stats returns statistics about the store contents.
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		CredentialCount: len(s.credentials),
		AuditEventCount: len(s.audit),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
