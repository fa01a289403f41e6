package logging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Credential lifecycle events
	CredentialPersist AuditEventType = "CREDENTIAL_PERSIST"
	CredentialDelete  AuditEventType = "CREDENTIAL_DELETE"

	// Token access events
	TokenRead    AuditEventType = "TOKEN_READ"
	TokenRefresh AuditEventType = "TOKEN_REFRESH"

	// Failure events requiring operator attention
	ReconnectRequired AuditEventType = "RECONNECT_REQUIRED"

	// API access events
	APIAccess AuditEventType = "API_ACCESS"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
)

// AuditEvent records one credential operation. It deliberately has no field
// that could hold token material; details carry outcomes and lengths only.
type AuditEvent struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     AuditEventType         `json:"event_type"`
	UserID        string                 `json:"user_id,omitempty"`
	Action        string                 `json:"action"`
	Status        AuditStatus            `json:"status"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
}

// NewAuditEvent creates a new audit event with a generated ID and timestamp
func NewAuditEvent(eventType AuditEventType, action string, status AuditStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Action:    action,
		Status:    status,
	}
}

// WithUserID sets the user ID for the audit event
func (e *AuditEvent) WithUserID(userID string) *AuditEvent {
	e.UserID = userID
	return e
}

// WithCorrelationID sets the correlation ID for the audit event
func (e *AuditEvent) WithCorrelationID(correlationID string) *AuditEvent {
	e.CorrelationID = correlationID
	return e
}

// WithDetails sets the details map for the audit event
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	e.Details = details
	return e
}

// WithError sets the error message and marks the event failed
func (e *AuditEvent) WithError(errorMessage string) *AuditEvent {
	e.ErrorMessage = errorMessage
	e.Status = StatusFailure
	return e
}

// ToJSON converts the audit event to a JSON string
func (e *AuditEvent) ToJSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal audit event: %v"}`, err)
	}
	return string(data)
}

// ParseAuditEvent parses a JSON string into an AuditEvent
func ParseAuditEvent(data string) (*AuditEvent, error) {
	var event AuditEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to parse audit event: %w", err)
	}
	return &event, nil
}

// AuditSink receives audit events. Implementations must not block the
// credential path; persistence failures are logged, never propagated.
type AuditSink interface {
	SaveAuditEvent(event *AuditEvent) error
}
