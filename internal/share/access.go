package share

import (
	"context"
	"errors"
	"time"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/rbac"
	"github.com/blockvault/internal/store"
)

// AccessKind records why a read was allowed.
type AccessKind string

const (
	AccessOwner  AccessKind = "OWNER"
	AccessShared AccessKind = "SHARED"
)

var (
	// ErrFileNotFound covers both a missing file and a file the caller has
	// no grant for.
	ErrFileNotFound = apperr.New(apperr.NotFound, "file not found")
	ErrShareExpired = apperr.New(apperr.Forbidden, "share expired")
)

// AccessController 文件读取授权
//
// It must run before any blob is touched.
type AccessController struct {
	files  store.FileRepository
	shares store.ShareRepository
	now    func() time.Time
}

func NewAccessController(files store.FileRepository, shares store.ShareRepository) *AccessController {
	return &AccessController{files: files, shares: shares, now: time.Now}
}

// AuthorizeRead decides whether p may read file.
func (a *AccessController) AuthorizeRead(ctx context.Context, p rbac.Principal, file *models.FileRecord) (AccessKind, error) {
	if p.Address == file.Owner {
		if err := p.EnsureAtLeast(rbac.RoleOwner); err != nil {
			return "", err
		}
		return AccessOwner, nil
	}

	if err := p.EnsureAtLeast(rbac.RoleViewer); err != nil {
		return "", err
	}
	grant, err := a.shares.FindForRecipient(ctx, file.ID, p.Address)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", err
	}
	if grant.ExpiredAt(a.now().UnixMilli()) {
		return "", ErrShareExpired
	}
	return AccessShared, nil
}

// Authorize loads fileID and authorizes the read.
func (a *AccessController) Authorize(ctx context.Context, p rbac.Principal, fileID string) (*models.FileRecord, AccessKind, error) {
	file, err := a.files.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrFileNotFound
	}
	if err != nil {
		return nil, "", err
	}
	kind, err := a.AuthorizeRead(ctx, p, file)
	if err != nil {
		return nil, "", err
	}
	return file, kind, nil
}
