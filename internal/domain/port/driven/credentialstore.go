package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialVault operations when
// BILIPUBLISH_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set BILIPUBLISH_SECRET_KEY")

// CredentialVault defines the driven port for encrypted, durable credential
// persistence keyed by platform account id. The adapter layer is responsible
// for encryption/decryption; this interface operates on plaintext values at
// the domain boundary.
type CredentialVault interface {
	// Save encrypts raw and upserts the record for accountID, resetting the
	// expiry to now + TTL. Encryption failures wrap model.ErrEncryption.
	Save(ctx context.Context, accountID, displayName, raw string) error

	// Load returns the decrypted credential. Returns model.ErrNotFound when no
	// record exists, model.ErrExpired when the record is past its expiry and
	// model.ErrDecryption when the stored blob cannot be opened.
	Load(ctx context.Context, accountID string) (string, error)

	// IsValid reports whether a non-expired record exists for accountID.
	IsValid(ctx context.Context, accountID string) (bool, error)

	// Get returns the record metadata (ciphertext included, never plaintext).
	// Expired records are reported as model.ErrExpired.
	Get(ctx context.Context, accountID string) (*model.CredentialRecord, error)

	// UpdateDisplayName changes the display name without touching the
	// payload or the expiry. Missing records are ignored.
	UpdateDisplayName(ctx context.Context, accountID, displayName string) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, accountID string) error
}
