package errors

import (
	"fmt"
	"time"
)

// Credential lifecycle errors

// ErrNoCredential indicates the user never connected the integration.
// The remedy is to initiate the OAuth flow, not to retry.
type ErrNoCredential struct {
	UserID string
}

func (e *ErrNoCredential) Error() string {
	return fmt.Sprintf("no stored credential for user %s", e.UserID)
}

// ErrReconnectRequired indicates the stored credential can no longer yield a
// valid access token: either the ciphertext is unreadable or the provider
// revoked the refresh token. The user must re-consent.
type ErrReconnectRequired struct {
	UserID string
	Reason string
	Err    error
}

func (e *ErrReconnectRequired) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("reconnect required for user %s: %s", e.UserID, e.Reason)
	}
	return fmt.Sprintf("reconnect required for user %s", e.UserID)
}

func (e *ErrReconnectRequired) Unwrap() error {
	return e.Err
}

// ErrProviderTransient indicates a network failure, timeout or provider 5xx
// during the refresh exchange. Callers may retry with backoff; this must
// never be surfaced as a reconnect prompt.
type ErrProviderTransient struct {
	StatusCode int
	Err        error
}

func (e *ErrProviderTransient) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *ErrProviderTransient) Unwrap() error {
	return e.Err
}

// ErrPersistFailedAfterRefresh indicates the refresh exchange succeeded but
// the new token could not be written back. The token cost a network round
// trip; it is carried here so the caller can still use it for the current
// request.
type ErrPersistFailedAfterRefresh struct {
	UserID      string
	AccessToken string
	Expiry      time.Time
	Err         error
}

func (e *ErrPersistFailedAfterRefresh) Error() string {
	return fmt.Sprintf("refresh succeeded for user %s but persist failed: %v", e.UserID, e.Err)
}

func (e *ErrPersistFailedAfterRefresh) Unwrap() error {
	return e.Err
}

// ErrRefreshRejected indicates the provider explicitly rejected the refresh
// exchange (invalid_grant and friends): the refresh token is invalid or
// consent was revoked. Distinct from ErrProviderTransient so a revocation is
// never mistaken for a blip.
type ErrRefreshRejected struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ErrRefreshRejected) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider rejected refresh (status %d, %s): %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("provider rejected refresh (status %d, %s)", e.StatusCode, e.Code)
}

// Cipher errors

// ErrAuthenticationFailed indicates the GCM tag did not verify: tampered or
// corrupted ciphertext, or the wrong master key.
type ErrAuthenticationFailed struct {
	Err error
}

func (e *ErrAuthenticationFailed) Error() string {
	return fmt.Sprintf("ciphertext authentication failed: %v", e.Err)
}

func (e *ErrAuthenticationFailed) Unwrap() error {
	return e.Err
}

// ErrCipherRandom indicates the random source was unavailable while drawing
// a nonce. Fatal and non-retryable.
type ErrCipherRandom struct {
	Err error
}

func (e *ErrCipherRandom) Error() string {
	return fmt.Sprintf("cipher randomness unavailable: %v", e.Err)
}

func (e *ErrCipherRandom) Unwrap() error {
	return e.Err
}

// ErrInvalidKey indicates the configured master key has the wrong length.
type ErrInvalidKey struct {
	Length int
}

func (e *ErrInvalidKey) Error() string {
	return fmt.Sprintf("master key must be 32 bytes, got %d", e.Length)
}

// TokenField names a credential field for unreadable-token classification.
type TokenField string

const (
	FieldAccessToken  TokenField = "access_token"
	FieldRefreshToken TokenField = "refresh_token"
)

// ErrTokenUnreadable indicates one field of a stored pair failed to decrypt.
// Which field matters: an unreadable access token alone is repairable by a
// refresh; an unreadable refresh token is not.
type ErrTokenUnreadable struct {
	UserID string
	Field  TokenField
	Err    error
}

func (e *ErrTokenUnreadable) Error() string {
	return fmt.Sprintf("stored %s unreadable for user %s: %v", e.Field, e.UserID, e.Err)
}

func (e *ErrTokenUnreadable) Unwrap() error {
	return e.Err
}

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}
