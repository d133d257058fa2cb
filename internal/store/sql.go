package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/store/migrations"
)

const defaultOpTimeout = 5 * time.Second

const (
	tableNonces = "nonces"
	tableUsers  = "users"
	tableFiles  = "files"
	tableShares = "shares"
)

var (
	fileColumns = []string{"id", "owner", "original_name", "enc_filename", "size", "created_at", "aad", "sha256", "cid"}

	shareColumns = []string{"id", "file_id", "owner", "recipient", "encrypted_key", "note", "created_at",
		"updated_at", "expires_at", "file_name", "file_size", "sha256", "cid"}
)

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

// OpenSQL connects, verifies the connection and applies migrations.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, timeout time.Duration, logger *logrus.Logger) (*SQLStore, error) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite只允许单写者
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	s := NewSQLStore(db, dialect, timeout)
	if err := s.Migrate(ctx, logger); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database without migrating it.
func NewSQLStore(db *sql.DB, dialect Dialect, timeout time.Duration) *SQLStore {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &SQLStore{db: db, dialect: dialect, timeout: timeout}
}

// Migrate applies the embedded goose migrations.
func (s *SQLStore) Migrate(ctx context.Context, logger *logrus.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if logger != nil {
		goose.SetLogger(logger)
	}
	if err := goose.SetDialect(s.dialect.Goose()); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Nonces() NonceRepository { return sqlNonces{s} }
func (s *SQLStore) Users() UserRepository   { return sqlUsers{s} }
func (s *SQLStore) Files() FileRepository   { return sqlFiles{s} }
func (s *SQLStore) Shares() ShareRepository { return sqlShares{s} }

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// upstream classifies a driver error. A missing row becomes ErrNotFound.
func upstream(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return apperr.Upstream(op, err)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type sqlNonces struct{ s *SQLStore }

func (r sqlNonces) Upsert(ctx context.Context, c *models.NonceChallenge) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	_, err := r.s.dialect.Insert(tableNonces).
		Set("address", c.Address.String()).
		Set("nonce", c.Nonce).
		Set("created_at", c.CreatedAt).
		OnConflict("address").
		DoUpdate("nonce", "created_at").
		Exec(ctx, r.s.db)
	return upstream("nonce store", err)
}

func (r sqlNonces) Get(ctx context.Context, address identity.Address) (*models.NonceChallenge, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	c := &models.NonceChallenge{Address: address}
	err := r.s.dialect.Select(tableNonces, "nonce", "created_at").
		Where("address = ?", address.String()).
		QueryRow(ctx, r.s.db).
		Scan(&c.Nonce, &c.CreatedAt)
	if err != nil {
		return nil, upstream("nonce store", err)
	}
	return c, nil
}

func (r sqlNonces) DeleteIfMatch(ctx context.Context, address identity.Address, nonce string) (bool, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.s.dialect.Delete(tableNonces).
		Where("address = ?", address.String()).
		Where("nonce = ?", nonce).
		Exec(ctx, r.s.db)
	if err != nil {
		return false, upstream("nonce store", err)
	}
	ok, err := affected(res)
	return ok, upstream("nonce store", err)
}

type sqlUsers struct{ s *SQLStore }

func (r sqlUsers) EnsureUser(ctx context.Context, address identity.Address, createdAt int64) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	_, err := r.s.dialect.Insert(tableUsers).
		Set("address", address.String()).
		Set("created_at", createdAt).
		OnConflict("address").
		Exec(ctx, r.s.db)
	return upstream("user store", err)
}

func (r sqlUsers) Get(ctx context.Context, address identity.Address) (*models.User, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	u := &models.User{Address: address}
	err := r.s.dialect.Select(tableUsers, "created_at", "sharing_pubkey").
		Where("address = ?", address.String()).
		QueryRow(ctx, r.s.db).
		Scan(&u.CreatedAt, &u.SharingPubKey)
	if err != nil {
		return nil, upstream("user store", err)
	}
	return u, nil
}

func (r sqlUsers) SetSharingKey(ctx context.Context, address identity.Address, pem string) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.s.dialect.Update(tableUsers).
		Set("sharing_pubkey", pem).
		Where("address = ?", address.String()).
		Exec(ctx, r.s.db)
	if err != nil {
		return upstream("user store", err)
	}
	ok, err := affected(res)
	if err != nil {
		return upstream("user store", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

type sqlFiles struct{ s *SQLStore }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var (
		f     models.FileRecord
		owner string
		aad   sql.NullString
	)
	if err := row.Scan(&f.ID, &owner, &f.OriginalName, &f.EncBlobRef, &f.Size, &f.CreatedAt, &aad, &f.ContentHash, &f.ContentID); err != nil {
		return nil, err
	}
	f.Owner = identity.Address(owner)
	if aad.Valid {
		f.AAD = &aad.String
	}
	return &f, nil
}

func (r sqlFiles) Insert(ctx context.Context, f *models.FileRecord) error {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var aad any
	if f.AAD != nil {
		aad = *f.AAD
	}
	_, err := r.s.dialect.Insert(tableFiles).
		Set("id", f.ID).
		Set("owner", f.Owner.String()).
		Set("original_name", f.OriginalName).
		Set("enc_filename", f.EncBlobRef).
		Set("size", f.Size).
		Set("created_at", f.CreatedAt).
		Set("aad", aad).
		Set("sha256", f.ContentHash).
		Set("cid", f.ContentID).
		Exec(ctx, r.s.db)
	return upstream("file store", err)
}

func (r sqlFiles) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	f, err := scanFile(r.s.dialect.Select(tableFiles, fileColumns...).
		Where("id = ?", id).
		QueryRow(ctx, r.s.db))
	if err != nil {
		return nil, upstream("file store", err)
	}
	return f, nil
}

func (r sqlFiles) ListByOwner(ctx context.Context, owner identity.Address, after *int64, limit int) ([]*models.FileRecord, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	q := r.s.dialect.Select(tableFiles, fileColumns...).Where("owner = ?", owner.String())
	if after != nil {
		q.Where("created_at > ?", *after)
	}
	rows, err := q.OrderBy("created_at ASC", "id ASC").Limit(limit).Query(ctx, r.s.db)
	if err != nil {
		return nil, upstream("file store", err)
	}
	defer rows.Close()

	var out []*models.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, upstream("file store", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("file store", err)
	}
	return out, nil
}

func (r sqlFiles) Delete(ctx context.Context, id string, owner identity.Address) (bool, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.s.dialect.Delete(tableFiles).
		Where("id = ?", id).
		Where("owner = ?", owner.String()).
		Exec(ctx, r.s.db)
	if err != nil {
		return false, upstream("file store", err)
	}
	ok, err := affected(res)
	return ok, upstream("file store", err)
}

type sqlShares struct{ s *SQLStore }

func scanShare(row rowScanner) (*models.ShareGrant, error) {
	var (
		g                models.ShareGrant
		owner, recipient string
		note             sql.NullString
		expiresAt        sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.FileID, &owner, &recipient, &g.EncryptedKey, &note, &g.CreatedAt,
		&g.UpdatedAt, &expiresAt, &g.FileName, &g.FileSize, &g.ContentHash, &g.ContentID)
	if err != nil {
		return nil, err
	}
	g.Owner = identity.Address(owner)
	g.Recipient = identity.Address(recipient)
	if note.Valid {
		g.Note = &note.String
	}
	if expiresAt.Valid {
		g.ExpiresAt = &expiresAt.Int64
	}
	return &g, nil
}

// Upsert relies on the (file_id, owner, recipient) unique constraint so two
// concurrent shares of the same pair collapse into one row.
func (r sqlShares) Upsert(ctx context.Context, g *models.ShareGrant) (*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	var note, expiresAt any
	if g.Note != nil {
		note = *g.Note
	}
	if g.ExpiresAt != nil {
		expiresAt = *g.ExpiresAt
	}

	var stored *models.ShareGrant
	err := WithTx(ctx, r.s.db, func(ctx context.Context, tx DBTX) error {
		_, err := r.s.dialect.Insert(tableShares).
			Set("id", g.ID).
			Set("file_id", g.FileID).
			Set("owner", g.Owner.String()).
			Set("recipient", g.Recipient.String()).
			Set("encrypted_key", g.EncryptedKey).
			Set("note", note).
			Set("created_at", g.CreatedAt).
			Set("updated_at", g.UpdatedAt).
			Set("expires_at", expiresAt).
			Set("file_name", g.FileName).
			Set("file_size", g.FileSize).
			Set("sha256", g.ContentHash).
			Set("cid", g.ContentID).
			OnConflict("file_id", "owner", "recipient").
			DoUpdate("encrypted_key", "note", "updated_at", "expires_at", "file_name", "file_size", "sha256", "cid").
			Exec(ctx, tx)
		if err != nil {
			return err
		}

		stored, err = scanShare(r.s.dialect.Select(tableShares, shareColumns...).
			Where("file_id = ?", g.FileID).
			Where("owner = ?", g.Owner.String()).
			Where("recipient = ?", g.Recipient.String()).
			QueryRow(ctx, tx))
		return err
	})
	if err != nil {
		return nil, upstream("share store", err)
	}
	return stored, nil
}

func (r sqlShares) Get(ctx context.Context, id string) (*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	g, err := scanShare(r.s.dialect.Select(tableShares, shareColumns...).
		Where("id = ?", id).
		QueryRow(ctx, r.s.db))
	if err != nil {
		return nil, upstream("share store", err)
	}
	return g, nil
}

func (r sqlShares) FindForRecipient(ctx context.Context, fileID string, recipient identity.Address) (*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	g, err := scanShare(r.s.dialect.Select(tableShares, shareColumns...).
		Where("file_id = ?", fileID).
		Where("recipient = ?", recipient.String()).
		OrderBy("created_at ASC").
		Limit(1).
		QueryRow(ctx, r.s.db))
	if err != nil {
		return nil, upstream("share store", err)
	}
	return g, nil
}

func (r sqlShares) ListByRecipient(ctx context.Context, recipient identity.Address) ([]*models.ShareGrant, error) {
	return r.list(ctx, "recipient = ?", recipient.String())
}

func (r sqlShares) ListByOwner(ctx context.Context, owner identity.Address) ([]*models.ShareGrant, error) {
	return r.list(ctx, "owner = ?", owner.String())
}

func (r sqlShares) list(ctx context.Context, cond string, arg any) ([]*models.ShareGrant, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	rows, err := r.s.dialect.Select(tableShares, shareColumns...).
		Where(cond, arg).
		OrderBy("created_at ASC", "id ASC").
		Query(ctx, r.s.db)
	if err != nil {
		return nil, upstream("share store", err)
	}
	defer rows.Close()

	var out []*models.ShareGrant
	for rows.Next() {
		g, err := scanShare(rows)
		if err != nil {
			return nil, upstream("share store", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("share store", err)
	}
	return out, nil
}

func (r sqlShares) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.s.opContext(ctx)
	defer cancel()

	res, err := r.s.dialect.Delete(tableShares).Where("id = ?", id).Exec(ctx, r.s.db)
	if err != nil {
		return false, upstream("share store", err)
	}
	ok, err := affected(res)
	return ok, upstream("share store", err)
}
