package postgres

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/bilipublish/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

var credentialCols = []string{"account_id", "display_name", "encrypted_payload", "created_at", "updated_at", "expires_at"}

func newMockCredentialRepo(t *testing.T) (*CredentialRepo, pgxmock.PgxPoolIface, *aesgcm.Sealer) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	sealer, err := aesgcm.NewSealer(bytes.Repeat([]byte{0x22}, aesgcm.KeySize))
	require.NoError(t, err)
	return NewCredentialRepo(mock, sealer, 0), mock, sealer
}

func TestCredentialRepo_Save(t *testing.T) {
	repo, mock, _ := newMockCredentialRepo(t)
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO credentials").
		WithArgs("42", "alice", pgxmock.AnyArg(), fixed, fixed.Add(model.DefaultCredentialTTL)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Save(context.Background(), "42", "alice", "SESSDATA=abc")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_LoadDecrypts(t *testing.T) {
	repo, mock, sealer := newMockCredentialRepo(t)
	blob, err := sealer.Seal("SESSDATA=abc")
	require.NoError(t, err)

	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	mock.ExpectQuery("SELECT account_id, display_name").
		WithArgs("42").
		WillReturnRows(pgxmock.NewRows(credentialCols).AddRow("42", "alice", blob, now, now, &expires))

	val, err := repo.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "SESSDATA=abc", val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	repo, mock, _ := newMockCredentialRepo(t)

	mock.ExpectQuery("SELECT account_id, display_name").
		WithArgs("42").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "42")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_GetExpired(t *testing.T) {
	repo, mock, _ := newMockCredentialRepo(t)

	now := time.Now().UTC()
	expired := now.Add(-time.Second)
	mock.ExpectQuery("SELECT account_id, display_name").
		WithArgs("42").
		WillReturnRows(pgxmock.NewRows(credentialCols).AddRow("42", "alice", "blob", now, now, &expired))

	valid, err := repo.IsValid(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_LoadTampered(t *testing.T) {
	repo, mock, _ := newMockCredentialRepo(t)

	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	mock.ExpectQuery("SELECT account_id, display_name").
		WithArgs("42").
		WillReturnRows(pgxmock.NewRows(credentialCols).AddRow("42", "alice", "bm90LWEtcmVhbC1ibG9iLWF0LWFsbC0xMjM0NTY=", now, now, &expires))

	_, err := repo.Load(context.Background(), "42")
	assert.ErrorIs(t, err, model.ErrDecryption)
}

func TestCredentialRepo_UpdateDisplayNameAndDelete(t *testing.T) {
	repo, mock, _ := newMockCredentialRepo(t)
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec("UPDATE credentials SET display_name").
		WithArgs("bob", fixed, "42").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM credentials").
		WithArgs("42").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.UpdateDisplayName(context.Background(), "42", "bob"))
	require.NoError(t, repo.Delete(context.Background(), "42"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
