package oauth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sitepulse/tokenvault/internal/alerts"
	"github.com/sitepulse/tokenvault/internal/errors"
	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/metrics"
	"github.com/sitepulse/tokenvault/internal/vault"
)

// AccessToken is a currently-valid plaintext access token plus its expiry.
type AccessToken struct {
	Token  string
	Expiry time.Time
}

// Orchestrator produces a currently-valid access token for a user,
// performing the provider refresh exchange when the stored token is stale.
// It holds no per-user state: every pass re-reads from the vault, duplicate
// refreshes under contention are tolerated (the provider mints another
// token, the last writer wins), and it never retries a refresh internally
// so a revoked consent can't masquerade as a transient failure.
type Orchestrator struct {
	vault    *vault.Vault
	provider ProviderClient
	logger   *logging.Logger
	metrics  *metrics.Metrics
	audit    logging.AuditSink
	notifier alerts.Notifier
	now      func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithAuditSink sets the audit sink for refresh outcomes.
func WithAuditSink(sink logging.AuditSink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.audit = sink
	}
}

// WithNotifier sets the operator notification sink.
func WithNotifier(notifier alerts.Notifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.notifier = notifier
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator over a vault and provider client.
func NewOrchestrator(v *vault.Vault, provider ProviderClient, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		vault:    v,
		provider: provider,
		logger:   logging.NewLogger(),
		notifier: alerts.NoopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ValidAccessToken returns a currently-valid plaintext access token for the
// user. The fast path (stored token not stale) performs zero writes and
// zero provider calls. Error taxonomy, in caller terms:
//
//	ErrNoCredential            — user never connected; start the OAuth flow
//	ErrReconnectRequired       — ciphertext unreadable or consent revoked; re-consent
//	ErrProviderTransient       — network/5xx; retry with backoff
//	ErrPersistFailedAfterRefresh — token minted but not cached; use it, warn
func (o *Orchestrator) ValidAccessToken(ctx context.Context, userID string) (*AccessToken, error) {
	ctx, correlationID := logging.EnsureCorrelationID(ctx)

	record, err := o.vault.Load(ctx, userID)
	if err != nil {
		var noCred *errors.ErrNoCredential
		if stderrors.As(err, &noCred) {
			o.observe("no_credential")
			return nil, err
		}
		o.observe("store_error")
		return nil, err
	}

	pair, decryptErr := o.vault.DecryptPair(record)
	forceRefresh := false
	if decryptErr != nil {
		var unreadable *errors.ErrTokenUnreadable
		if stderrors.As(decryptErr, &unreadable) && unreadable.Field == errors.FieldAccessToken {
			// Access token unreadable but refresh token intact: the
			// refresh flow repairs the record. No network call happened
			// yet; just force the stale path.
			forceRefresh = true
			o.logger.WarnWithContext(ctx, "stored access token unreadable, forcing refresh",
				"user_id", userID,
			)
		} else {
			o.observe("reconnect_required")
			o.auditEvent(logging.ReconnectRequired, userID, correlationID, decryptErr)
			o.notifier.Notify(alerts.NewAlert(alerts.AlertTypeReconnect, alerts.SeverityWarning, userID, "stored credential unreadable"))
			return nil, &errors.ErrReconnectRequired{
				UserID: userID,
				Reason: "stored credential unreadable",
				Err:    decryptErr,
			}
		}
	}

	now := o.now()
	if !forceRefresh && !o.vault.IsStale(pair.Expiry, now) {
		o.observe("fresh")
		return &AccessToken{Token: pair.AccessToken, Expiry: pair.Expiry}, nil
	}

	return o.refresh(ctx, userID, correlationID, pair.RefreshToken)
}

// refresh performs exactly one provider exchange and persists the result.
func (o *Orchestrator) refresh(ctx context.Context, userID, correlationID, refreshToken string) (*AccessToken, error) {
	resp, err := o.provider.Refresh(ctx, refreshToken)
	if err != nil {
		var rejected *errors.ErrRefreshRejected
		if stderrors.As(err, &rejected) {
			// Revoked or invalid refresh token. Report only; deleting
			// the stored credential is a user-initiated action.
			o.observe("reconnect_required")
			o.auditEvent(logging.ReconnectRequired, userID, correlationID, err)
			o.logger.WarnWithContext(ctx, "provider rejected refresh",
				"user_id", userID,
				"provider_error", rejected.Code,
			)
			o.notifier.Notify(alerts.NewAlert(alerts.AlertTypeReconnect, alerts.SeverityWarning, userID, "provider rejected refresh token"))
			return nil, &errors.ErrReconnectRequired{
				UserID: userID,
				Reason: "provider rejected refresh token",
				Err:    err,
			}
		}

		o.observe("transient")
		o.logger.WarnWithContext(ctx, "transient provider failure during refresh",
			"user_id", userID,
			"error", err.Error(),
		)
		return nil, err
	}

	expiry := o.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	token := &AccessToken{Token: resp.AccessToken, Expiry: expiry}

	if err := o.vault.PersistAccessToken(ctx, userID, resp.AccessToken, expiry); err != nil {
		// The exchange cost a network round trip; hand the minted token
		// to the caller even though it could not be cached.
		o.observe("persist_failed")
		o.auditEvent(logging.TokenRefresh, userID, correlationID, err)
		o.logger.ErrorWithContext(ctx, "persist failed after successful refresh",
			"user_id", userID,
			"error", err.Error(),
		)
		o.notifier.Notify(alerts.NewAlert(alerts.AlertTypePersistFailure, alerts.SeverityCritical, userID, err.Error()))
		return nil, &errors.ErrPersistFailedAfterRefresh{
			UserID:      userID,
			AccessToken: resp.AccessToken,
			Expiry:      expiry,
			Err:         err,
		}
	}

	o.observe("refreshed")
	o.auditEvent(logging.TokenRefresh, userID, correlationID, nil)
	o.logger.InfoWithContext(ctx, "access token refreshed",
		"user_id", userID,
		"token", logging.TokenPreview(resp.AccessToken),
		"expiry", expiry.Format(time.RFC3339),
	)
	return token, nil
}

func (o *Orchestrator) observe(outcome string) {
	if o.metrics != nil {
		o.metrics.RefreshOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) auditEvent(eventType logging.AuditEventType, userID, correlationID string, failure error) {
	if o.audit == nil {
		return
	}
	event := logging.NewAuditEvent(eventType, "refresh access token", logging.StatusSuccess).
		WithUserID(userID).
		WithCorrelationID(correlationID)
	if failure != nil {
		event.WithError(failure.Error())
	}
	if err := o.audit.SaveAuditEvent(event); err != nil {
		o.logger.Error("failed to save audit event", "error", err.Error())
	}
}
