package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity represents alert severity level
type Severity string

const (
	// SeverityInfo is for informational alerts
	SeverityInfo Severity = "info"
	// SeverityWarning is for warning alerts
	SeverityWarning Severity = "warning"
	// SeverityCritical is for critical alerts
	SeverityCritical Severity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	// AlertTypeReconnect fires when a user's credential needs re-consent
	AlertTypeReconnect AlertType = "reconnect_required"
	// AlertTypePersistFailure fires when a refreshed token could not be cached
	AlertTypePersistFailure AlertType = "persist_failure"
)

// Alert represents an operator notification about one user's credential.
// It carries no token material, only the user and the reason.
type Alert struct {
	ID        string
	UserID    string
	Type      AlertType
	Severity  Severity
	Reason    string
	Timestamp time.Time
}

// NewAlert creates an alert with a generated ID and timestamp
func NewAlert(alertType AlertType, severity Severity, userID, reason string) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      alertType,
		Severity:  severity,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// AlertKey creates a unique key for deduplication
func (a *Alert) AlertKey() string {
	return a.UserID + ":" + string(a.Type)
}

// Message renders the operator-facing text
func (a *Alert) Message() string {
	switch a.Type {
	case AlertTypeReconnect:
		return fmt.Sprintf("⚠️ Integration disconnected for user `%s`: %s. The user must reconnect their Google account.", a.UserID, a.Reason)
	case AlertTypePersistFailure:
		return fmt.Sprintf("🔥 Token refreshed for user `%s` but could not be saved: %s. Check storage.", a.UserID, a.Reason)
	default:
		return fmt.Sprintf("Alert for user `%s`: %s", a.UserID, a.Reason)
	}
}

// AlertRecord represents a sent alert record for deduplication
type AlertRecord struct {
	AlertKey string
	SentAt   time.Time
	Count    int
}
