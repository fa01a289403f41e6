package models

import (
	"fmt"
	"time"
)

// EncryptedToken is the at-rest representation of a single secret string.
// Ciphertext, nonce and tag are stored separately so the store schema has
// exactly one canonical column set per token.
type EncryptedToken struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
}

// IsZero reports whether the token has no cipher material at all.
func (t EncryptedToken) IsZero() bool {
	return len(t.Ciphertext) == 0 && len(t.Nonce) == 0 && len(t.Tag) == 0
}

// CredentialRecord is the stored credential pair for one dashboard user.
// At most one record exists per user; writes are upserts keyed by UserID.
type CredentialRecord struct {
	UserID       string         `json:"user_id"`
	AccessToken  EncryptedToken `json:"access_token"`
	RefreshToken EncryptedToken `json:"refresh_token"`
	Expiry       time.Time      `json:"expiry"`
	Scope        []string       `json:"scope,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate checks the record invariants before it is persisted.
// Both cipher fields must be fully populated; partial records are never
// written, even by the narrow post-refresh path.
func (r *CredentialRecord) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if err := validateToken("access_token", r.AccessToken); err != nil {
		return err
	}
	if err := validateToken("refresh_token", r.RefreshToken); err != nil {
		return err
	}
	if r.Expiry.IsZero() {
		return fmt.Errorf("expiry is required")
	}
	return nil
}

func validateToken(field string, t EncryptedToken) error {
	if len(t.Ciphertext) == 0 {
		return fmt.Errorf("%s: ciphertext is empty", field)
	}
	if len(t.Nonce) == 0 {
		return fmt.Errorf("%s: nonce is empty", field)
	}
	if len(t.Tag) == 0 {
		return fmt.Errorf("%s: authentication tag is empty", field)
	}
	return nil
}

// TokenPair is the plaintext domain view of a credential pair. It exists
// only in memory; it is never persisted or logged.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        []string
}
