package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/models"
)

func newPostgresMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, DialectPostgres, time.Second), mock
}

func TestPostgresNonceUpsert(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec("INSERT INTO nonces (address, nonce, created_at) VALUES ($1, $2, $3) " +
		"ON CONFLICT (address) DO UPDATE SET nonce = excluded.nonce, created_at = excluded.created_at").
		WithArgs(alice.String(), "abc", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Nonces().Upsert(context.Background(), &models.NonceChallenge{Address: alice, Nonce: "abc", CreatedAt: 42})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNonceDeleteIfMatch(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec("DELETE FROM nonces WHERE address = $1 AND nonce = $2").
		WithArgs(alice.String(), "abc").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Nonces().DeleteIfMatch(context.Background(), alice, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMissingRowIsNotFound(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectQuery("SELECT created_at, sharing_pubkey FROM users WHERE address = $1").
		WithArgs(bob.String()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "sharing_pubkey"}))

	_, err := s.Users().Get(context.Background(), bob)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDriverErrorIsUpstream(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec("INSERT INTO users (address, created_at) VALUES ($1, $2) ON CONFLICT (address) DO NOTHING").
		WithArgs(bob.String(), int64(7)).
		WillReturnError(errors.New("connection reset"))

	err := s.Users().EnsureUser(context.Background(), bob, 7)
	require.Error(t, err)
	assert.Equal(t, apperr.UpstreamUnavailable, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListByOwner(t *testing.T) {
	s, mock := newPostgresMock(t)

	rows := sqlmock.NewRows(fileColumns).
		AddRow("f2", alice.String(), "b.txt", "b.bv", int64(5), int64(2000), nil, "h2", "").
		AddRow("f3", alice.String(), "c.txt", "c.bv", int64(6), int64(3000), "aad", "h3", "bafy")
	mock.ExpectQuery("SELECT id, owner, original_name, enc_filename, size, created_at, aad, sha256, cid FROM files " +
		"WHERE owner = $1 AND created_at > $2 ORDER BY created_at ASC, id ASC LIMIT 2").
		WithArgs(alice.String(), int64(1000)).
		WillReturnRows(rows)

	after := int64(1000)
	got, err := s.Files().ListByOwner(context.Background(), alice, &after, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].AAD)
	require.NotNil(t, got[1].AAD)
	assert.Equal(t, "aad", *got[1].AAD)
	assert.Equal(t, "bafy", got[1].ContentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresShareUpsertRollsBack(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shares (id, file_id, owner, recipient, encrypted_key, note, created_at, updated_at, " +
		"expires_at, file_name, file_size, sha256, cid) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) " +
		"ON CONFLICT (file_id, owner, recipient) DO UPDATE SET encrypted_key = excluded.encrypted_key, " +
		"note = excluded.note, updated_at = excluded.updated_at, expires_at = excluded.expires_at, " +
		"file_name = excluded.file_name, file_size = excluded.file_size, sha256 = excluded.sha256, cid = excluded.cid").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := s.Shares().Upsert(context.Background(), &models.ShareGrant{
		ID: "s1", FileID: "f1", Owner: alice, Recipient: bob, EncryptedKey: "k", CreatedAt: 1,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.UpstreamUnavailable, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
