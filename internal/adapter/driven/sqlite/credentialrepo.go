package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/bilipublish/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialVault = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialVault port interface.
// Credential values are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db     *DB
	sealer *aesgcm.Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialRepo creates a new CredentialRepo. ttl is the lifetime granted
// on every Save; zero selects model.DefaultCredentialTTL.
func NewCredentialRepo(db *DB, sealer *aesgcm.Sealer, ttl time.Duration) *CredentialRepo {
	if ttl <= 0 {
		ttl = model.DefaultCredentialTTL
	}
	return &CredentialRepo{db: db, sealer: sealer, ttl: ttl, now: time.Now}
}

// Save encrypts raw and upserts the record, preserving created_at on update.
func (r *CredentialRepo) Save(ctx context.Context, accountID, displayName, raw string) error {
	encrypted, err := r.sealer.Seal(raw)
	if err != nil {
		return fmt.Errorf("save credential %q: %w", accountID, err)
	}

	now := r.now().UTC()
	expiresAt := now.Add(r.ttl)

	const query = `
		INSERT INTO credentials (account_id, display_name, encrypted_payload, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			display_name      = excluded.display_name,
			encrypted_payload = excluded.encrypted_payload,
			updated_at        = excluded.updated_at,
			expires_at        = excluded.expires_at`

	_, err = r.db.Writer.ExecContext(ctx, query,
		accountID, displayName, encrypted, formatTime(now), formatTime(now), formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("save credential %q: %w", accountID, err)
	}
	return nil
}

// Load returns the decrypted credential for accountID.
func (r *CredentialRepo) Load(ctx context.Context, accountID string) (string, error) {
	if !r.sealer.Enabled() {
		return "", driven.ErrEncryptionKeyNotSet
	}

	rec, err := r.Get(ctx, accountID)
	if err != nil {
		return "", err
	}

	plaintext, err := r.sealer.Open(rec.EncryptedPayload)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %q: %w", accountID, err)
	}
	return plaintext, nil
}

// IsValid reports whether a non-expired record exists.
func (r *CredentialRepo) IsValid(ctx context.Context, accountID string) (bool, error) {
	_, err := r.Get(ctx, accountID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrExpired):
		return false, nil
	default:
		return false, err
	}
}

// Get returns the stored record. Expired records yield model.ErrExpired.
func (r *CredentialRepo) Get(ctx context.Context, accountID string) (*model.CredentialRecord, error) {
	const query = `
		SELECT account_id, display_name, encrypted_payload, created_at, updated_at, expires_at
		FROM credentials WHERE account_id = ?`

	var (
		rec                  model.CredentialRecord
		createdAt, updatedAt string
		expiresAt            sql.NullString
	)
	err := r.db.Reader.QueryRowContext(ctx, query, accountID).Scan(
		&rec.AccountID, &rec.DisplayName, &rec.EncryptedPayload, &createdAt, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential %q: %w", accountID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", accountID, err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for credential %q: %w", accountID, err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for credential %q: %w", accountID, err)
	}
	if rec.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at for credential %q: %w", accountID, err)
	}

	if rec.IsExpired(r.now()) {
		return nil, fmt.Errorf("credential %q: %w", accountID, model.ErrExpired)
	}
	return &rec, nil
}

// UpdateDisplayName changes only the display name and updated_at.
func (r *CredentialRepo) UpdateDisplayName(ctx context.Context, accountID, displayName string) error {
	const query = `UPDATE credentials SET display_name = ?, updated_at = ? WHERE account_id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, displayName, formatTime(r.now()), accountID)
	if err != nil {
		return fmt.Errorf("update display name for credential %q: %w", accountID, err)
	}
	return nil
}

// Delete removes the credential for accountID.
func (r *CredentialRepo) Delete(ctx context.Context, accountID string) error {
	const query = `DELETE FROM credentials WHERE account_id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", accountID, err)
	}
	return nil
}
