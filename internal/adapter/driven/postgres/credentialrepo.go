package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ericfisherdev/bilipublish/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

var _ driven.CredentialVault = (*CredentialRepo)(nil)

// CredentialRepo stores encrypted credentials in PostgreSQL.
type CredentialRepo struct {
	pool   Pool
	sealer *aesgcm.Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialRepo creates a CredentialRepo. A non-positive ttl selects
// model.DefaultCredentialTTL.
func NewCredentialRepo(pool Pool, sealer *aesgcm.Sealer, ttl time.Duration) *CredentialRepo {
	if ttl <= 0 {
		ttl = model.DefaultCredentialTTL
	}
	return &CredentialRepo{pool: pool, sealer: sealer, ttl: ttl, now: time.Now}
}

func (r *CredentialRepo) Save(ctx context.Context, accountID, displayName, raw string) error {
	encrypted, err := r.sealer.Seal(raw)
	if err != nil {
		return fmt.Errorf("save credential %q: %w", accountID, err)
	}

	now := r.now().UTC()
	const query = `
		INSERT INTO credentials (account_id, display_name, encrypted_payload, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			display_name      = EXCLUDED.display_name,
			encrypted_payload = EXCLUDED.encrypted_payload,
			updated_at        = EXCLUDED.updated_at,
			expires_at        = EXCLUDED.expires_at`

	if _, err := r.pool.Exec(ctx, query, accountID, displayName, encrypted, now, now.Add(r.ttl)); err != nil {
		return fmt.Errorf("save credential %q: %w", accountID, err)
	}
	return nil
}

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

func (r *CredentialRepo) Get(ctx context.Context, accountID string) (*model.CredentialRecord, error) {
	const query = `
		SELECT account_id, display_name, encrypted_payload, created_at, updated_at, expires_at
		FROM credentials WHERE account_id = $1`

	var rec model.CredentialRecord
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&rec.AccountID, &rec.DisplayName, &rec.EncryptedPayload, &rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credential %q: %w", accountID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", accountID, err)
	}

	if rec.IsExpired(r.now()) {
		return nil, fmt.Errorf("credential %q: %w", accountID, model.ErrExpired)
	}
	return &rec, nil
}

func (r *CredentialRepo) UpdateDisplayName(ctx context.Context, accountID, displayName string) error {
	const query = `UPDATE credentials SET display_name = $1, updated_at = $2 WHERE account_id = $3`
	if _, err := r.pool.Exec(ctx, query, displayName, r.now().UTC(), accountID); err != nil {
		return fmt.Errorf("update display name for credential %q: %w", accountID, err)
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, accountID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM credentials WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete credential %q: %w", accountID, err)
	}
	return nil
}
