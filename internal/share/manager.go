// Package share implements per-recipient passphrase grants and the read
// authorization that depends on them.
package share

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/keywrap"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/rbac"
	"github.com/blockvault/internal/store"
)

// MaxNoteLength is counted in characters after trimming.
const MaxNoteLength = 280

// 错误定义
var (
	ErrForbidden           = apperr.New(apperr.Forbidden, "not the file owner")
	ErrPassphraseRequired  = apperr.New(apperr.InvalidInput, "passphrase is required")
	ErrNoteTooLong         = apperr.New(apperr.InvalidInput, "note exceeds 280 characters")
	ErrInvalidRecipient    = apperr.New(apperr.InvalidInput, "cannot share a file with yourself")
	ErrRecipientKeyMissing = apperr.New(apperr.InvalidInput, "recipient has not registered a sharing key")
	ErrInvalidRecipientKey = apperr.New(apperr.InvalidInput, "recipient sharing key is invalid")
	ErrShareNotFound       = apperr.New(apperr.NotFound, "share not found")
)

// GatewayResolver renders the public URL of a CID. cas.Store satisfies it.
type GatewayResolver interface {
	GatewayURL(cid string) string
}

// Manager 共享管理
type Manager struct {
	files   store.FileRepository
	users   store.UserRepository
	shares  store.ShareRepository
	gateway GatewayResolver
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewManager(files store.FileRepository, users store.UserRepository, shares store.ShareRepository, gateway GatewayResolver, logger logrus.FieldLogger) *Manager {
	return &Manager{
		files:   files,
		users:   users,
		shares:  shares,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateOrUpdate grants recipient the file passphrase. Re-sharing the same
// (file, owner, recipient) overwrites key, note and expiry but keeps the
// grant id and created_at.
func (m *Manager) CreateOrUpdate(ctx context.Context, p rbac.Principal, fileID string, req models.CreateShareRequest) (*models.ShareGrant, error) {
	if err := p.EnsureAtLeast(rbac.RoleOwner); err != nil {
		return nil, err
	}

	file, err := m.files.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if file.Owner != p.Address {
		return nil, ErrForbidden
	}

	if req.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	note, err := normalizeNote(req.Note)
	if err != nil {
		return nil, err
	}
	recipient, err := identity.Normalize(req.Recipient)
	if err != nil {
		return nil, err
	}
	if recipient == p.Address {
		return nil, ErrInvalidRecipient
	}

	user, err := m.users.Get(ctx, recipient)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRecipientKeyMissing
	}
	if err != nil {
		return nil, err
	}
	if !user.HasSharingKey() {
		return nil, ErrRecipientKeyMissing
	}

	encryptedKey, err := keywrap.EncryptPassphrase(user.SharingPubKey, req.Passphrase)
	if errors.Is(err, keywrap.ErrInvalidKey) {
		return nil, apperr.Wrap(ErrInvalidRecipientKey, err)
	}
	if err != nil {
		return nil, err
	}

	var expiresAt *int64
	if req.ExpiresAt != nil && *req.ExpiresAt > 0 {
		v := *req.ExpiresAt
		expiresAt = &v
	}

	now := m.now().UnixMilli()
	return m.shares.Upsert(ctx, &models.ShareGrant{
		ID:           uuid.New().String(),
		FileID:       file.ID,
		Owner:        p.Address,
		Recipient:    recipient,
		EncryptedKey: encryptedKey,
		Note:         note,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expiresAt,
		FileName:     file.OriginalName,
		FileSize:     file.Size,
		ContentHash:  file.ContentHash,
		ContentID:    file.ContentID,
	})
}

// normalizeNote trims the note. A blank note is stored as absent.
func normalizeNote(note *string) (*string, error) {
	if note == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxNoteLength {
		return nil, ErrNoteTooLong
	}
	return &trimmed, nil
}

// ListIncoming returns the caller's unexpired grants, key included.
func (m *Manager) ListIncoming(ctx context.Context, p rbac.Principal) ([]models.ShareView, error) {
	if err := p.EnsureAtLeast(rbac.RoleViewer); err != nil {
		return nil, err
	}
	grants, err := m.shares.ListByRecipient(ctx, p.Address)
	if err != nil {
		return nil, err
	}

	nowMs := m.now().UnixMilli()
	views := make([]models.ShareView, 0, len(grants))
	for _, g := range grants {
		if g.ExpiredAt(nowMs) {
			continue
		}
		m.backfill(ctx, g)
		views = append(views, g.View(true, m.gatewayURL(g.ContentID)))
	}
	return views, nil
}

// ListOutgoing returns every grant the caller made. The encrypted key is
// never part of an owner-facing view.
func (m *Manager) ListOutgoing(ctx context.Context, p rbac.Principal) ([]models.ShareView, error) {
	if err := p.EnsureAtLeast(rbac.RoleOwner); err != nil {
		return nil, err
	}
	grants, err := m.shares.ListByOwner(ctx, p.Address)
	if err != nil {
		return nil, err
	}

	views := make([]models.ShareView, 0, len(grants))
	for _, g := range grants {
		m.backfill(ctx, g)
		views = append(views, g.View(false, m.gatewayURL(g.ContentID)))
	}
	return views, nil
}

// Revoke deletes a grant regardless of expiry. Parties to the grant may
// always revoke; anyone else needs the admin role.
func (m *Manager) Revoke(ctx context.Context, p rbac.Principal, shareID string) error {
	g, err := m.shares.Get(ctx, shareID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrShareNotFound
	}
	if err != nil {
		return err
	}

	if p.Address != g.Owner && p.Address != g.Recipient {
		if err := p.EnsureAtLeast(rbac.RoleAdmin); err != nil {
			return err
		}
	}

	deleted, err := m.shares.Delete(ctx, shareID)
	if err != nil {
		return err
	}
	if !deleted {
		// revoked concurrently
		return ErrShareNotFound
	}
	return nil
}

// backfill fills missing snapshot fields from the file record for this
// response only.
func (m *Manager) backfill(ctx context.Context, g *models.ShareGrant) {
	if !g.MissingSnapshot() {
		return
	}
	file, err := m.files.Get(ctx, g.FileID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		apperr.BestEffort(m.logger, "share snapshot backfill", err)
		return
	}
	if g.FileName == "" {
		g.FileName = file.OriginalName
	}
	if g.FileSize == 0 {
		g.FileSize = file.Size
	}
	if g.ContentHash == "" {
		g.ContentHash = file.ContentHash
	}
	if g.ContentID == "" {
		g.ContentID = file.ContentID
	}
}

func (m *Manager) gatewayURL(cid string) string {
	if cid == "" || m.gateway == nil {
		return ""
	}
	return m.gateway.GatewayURL(cid)
}
