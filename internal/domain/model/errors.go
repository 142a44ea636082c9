// Package model holds the domain entities, enums and error taxonomy.
package model

import "errors"

// Credential vault errors.
var (
	ErrNotFound   = errors.New("not found")
	ErrExpired    = errors.New("credential expired")
	ErrEncryption = errors.New("credential encryption failed")
	ErrDecryption = errors.New("credential decryption failed")
)

// Reconciliation errors. ErrCredentialExpired is the "please re-login" signal
// surfaced to callers of publish and status operations.
var (
	ErrCredentialExpired = errors.New("credential expired, please log in again")
	ErrRecoveryFailed    = errors.New("credential artifact could not be restored")
)

// Upstream errors.
var (
	ErrUpstreamAuth        = errors.New("upstream rejected service authentication")
	ErrUpstreamProtocol    = errors.New("unexpected upstream response")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrCredentialRejected means the platform refused an account credential
	// that the upstream presented on our behalf.
	ErrCredentialRejected  = errors.New("credential rejected by platform")
)

// ErrInvalidRequest marks caller input that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// NeedsRelogin reports whether err means the caller must repeat the QR login
// before retrying the operation.
func NeedsRelogin(err error) bool {
	return errors.Is(err, ErrCredentialExpired) ||
		errors.Is(err, ErrExpired)
}
