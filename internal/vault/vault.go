package vault

import (
	"context"
	"time"

	"github.com/sitepulse/tokenvault/internal/crypto"
	"github.com/sitepulse/tokenvault/internal/errors"
	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/models"
	"github.com/sitepulse/tokenvault/internal/store"
)

// DefaultStalenessBuffer is the safety margin subtracted from the expiry
// instant so a token cannot expire between the staleness check and its use
// in an outbound request.
const DefaultStalenessBuffer = 60 * time.Second

// CipherMetrics counts seal/open operations by result.
type CipherMetrics interface {
	RecordCipherOperation(operation, result string)
}

// Vault translates between the plaintext token domain and the encrypted
// at-rest representation, and owns staleness evaluation. It never retries:
// store errors go back to the caller, and decryption failures would fail
// identically on retry.
type Vault struct {
	cipher  *crypto.Cipher
	store   store.RecordStore
	logger  *logging.Logger
	metrics CipherMetrics
	buffer  time.Duration
}

// Option configures a Vault.
type Option func(*Vault)

// WithStalenessBuffer overrides the default 60s staleness buffer.
func WithStalenessBuffer(buffer time.Duration) Option {
	return func(v *Vault) {
		v.buffer = buffer
	}
}

// WithLogger sets the vault logger.
func WithLogger(logger *logging.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// WithCipherMetrics sets the seal/open operation counter.
func WithCipherMetrics(metrics CipherMetrics) Option {
	return func(v *Vault) {
		v.metrics = metrics
	}
}

// New creates a Vault over a cipher and a record store.
func New(cipher *crypto.Cipher, recordStore store.RecordStore, opts ...Option) *Vault {
	v := &Vault{
		cipher: cipher,
		store:  recordStore,
		logger: logging.NewLogger(),
		buffer: DefaultStalenessBuffer,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vault) recordCipher(operation string, err error) {
	if v.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	v.metrics.RecordCipherOperation(operation, result)
}

// Load reads the stored record for a user. An absent record is the expected
// "never connected" condition and comes back as ErrNoCredential.
func (v *Vault) Load(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	record, err := v.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &errors.ErrNoCredential{UserID: userID}
	}
	return record, nil
}

// DecryptPair decrypts both fields of a record independently and classifies
// any failure by field. A readable refresh token with an unreadable access
// token is still recoverable (the refresh flow repairs it); an unreadable
// refresh token is not.
func (v *Vault) DecryptPair(record *models.CredentialRecord) (models.TokenPair, error) {
	refreshToken, refreshErr := v.cipher.Open(record.RefreshToken)
	v.recordCipher("open", refreshErr)
	if refreshErr != nil {
		return models.TokenPair{}, &errors.ErrTokenUnreadable{
			UserID: record.UserID,
			Field:  errors.FieldRefreshToken,
			Err:    refreshErr,
		}
	}

	accessToken, accessErr := v.cipher.Open(record.AccessToken)
	v.recordCipher("open", accessErr)
	if accessErr != nil {
		// Refresh token survives in the pair so the caller can repair.
		return models.TokenPair{
				RefreshToken: refreshToken,
				Expiry:       record.Expiry,
				Scope:        record.Scope,
			}, &errors.ErrTokenUnreadable{
				UserID: record.UserID,
				Field:  errors.FieldAccessToken,
				Err:    accessErr,
			}
	}

	return models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       record.Expiry,
		Scope:        record.Scope,
	}, nil
}

// IsStale reports whether the access token must be refreshed before use.
// The boundary now+buffer == expiry counts as stale: refresh before use.
func (v *Vault) IsStale(expiry, now time.Time) bool {
	return IsStale(expiry, now, v.buffer)
}

// IsStale is the stateless staleness predicate: true when now+buffer has
// reached or passed the expiry instant.
func IsStale(expiry, now time.Time, buffer time.Duration) bool {
	return !now.Add(buffer).Before(expiry)
}

// Persist encrypts both tokens with fresh nonces and upserts the full
// record. This is the only full-pair write path; it is used on first
// connect and on re-consent.
func (v *Vault) Persist(ctx context.Context, userID string, pair models.TokenPair) error {
	accessToken, err := v.cipher.Seal(pair.AccessToken)
	v.recordCipher("seal", err)
	if err != nil {
		return err
	}
	refreshToken, err := v.cipher.Seal(pair.RefreshToken)
	v.recordCipher("seal", err)
	if err != nil {
		return err
	}

	record := &models.CredentialRecord{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       pair.Expiry.UTC(),
		Scope:        pair.Scope,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := v.store.Upsert(ctx, record); err != nil {
		return err
	}

	v.logger.DebugWithContext(ctx, "credential pair persisted",
		"user_id", userID,
		"expiry", record.Expiry.Format(time.RFC3339),
		"scope_count", len(pair.Scope),
	)
	return nil
}

// PersistAccessToken re-encrypts only the access token after a refresh cycle
// that did not rotate the refresh token. The stored refresh ciphertext and
// scope are carried over unchanged, but the access token always gets a fresh
// nonce even when the plaintext coincides with the previous one.
func (v *Vault) PersistAccessToken(ctx context.Context, userID, accessToken string, expiry time.Time) error {
	record, err := v.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if record == nil {
		return &errors.ErrNoCredential{UserID: userID}
	}

	sealed, err := v.cipher.Seal(accessToken)
	v.recordCipher("seal", err)
	if err != nil {
		return err
	}

	record.AccessToken = sealed
	record.Expiry = expiry.UTC()
	record.UpdatedAt = time.Now().UTC()

	if err := v.store.Upsert(ctx, record); err != nil {
		return err
	}

	v.logger.DebugWithContext(ctx, "access token persisted after refresh",
		"user_id", userID,
		"expiry", record.Expiry.Format(time.RFC3339),
	)
	return nil
}

// Delete removes the stored credential entirely; used on disconnect.
func (v *Vault) Delete(ctx context.Context, userID string) error {
	if err := v.store.Delete(ctx, userID); err != nil {
		return err
	}
	v.logger.InfoWithContext(ctx, "credential deleted", "user_id", userID)
	return nil
}
