// Package store is the document store behind the services: one repository
// per collection (nonces, users, files, shares) with interchangeable
// backends selected once at startup.
//
// Every mutation a caller relies on for correctness is a single atomic
// operation in the backend: nonce upsert and compare-and-delete, insert-only
// user creation, and share upsert on (file_id, owner, recipient).
package store

import (
	"context"
	"errors"

	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
)

// ErrNotFound is returned by every lookup that matches nothing.
var ErrNotFound = errors.New("record not found")

type NonceRepository interface {
	// Upsert replaces any challenge stored for the address.
	Upsert(ctx context.Context, challenge *models.NonceChallenge) error
	Get(ctx context.Context, address identity.Address) (*models.NonceChallenge, error)
	// DeleteIfMatch removes the challenge only if it still holds nonce.
	// It reports whether a challenge was removed.
	DeleteIfMatch(ctx context.Context, address identity.Address, nonce string) (bool, error)
}

type UserRepository interface {
	// EnsureUser creates the user if missing. Existing users are untouched.
	EnsureUser(ctx context.Context, address identity.Address, createdAt int64) error
	Get(ctx context.Context, address identity.Address) (*models.User, error)
	// SetSharingKey stores a PEM public key; an empty pem clears it.
	SetSharingKey(ctx context.Context, address identity.Address, pem string) error
}

type FileRepository interface {
	Insert(ctx context.Context, file *models.FileRecord) error
	Get(ctx context.Context, id string) (*models.FileRecord, error)
	// ListByOwner returns up to limit records with CreatedAt > after (when
	// after is non-nil), oldest first.
	ListByOwner(ctx context.Context, owner identity.Address, after *int64, limit int) ([]*models.FileRecord, error)
	// Delete removes the record only if owner owns it.
	Delete(ctx context.Context, id string, owner identity.Address) (bool, error)
}

type ShareRepository interface {
	// Upsert inserts the grant or, when a grant already exists for
	// (FileID, Owner, Recipient), overwrites its key, note, expiry and
	// snapshot while keeping its ID and CreatedAt. The stored grant is
	// returned.
	Upsert(ctx context.Context, grant *models.ShareGrant) (*models.ShareGrant, error)
	Get(ctx context.Context, id string) (*models.ShareGrant, error)
	FindForRecipient(ctx context.Context, fileID string, recipient identity.Address) (*models.ShareGrant, error)
	ListByRecipient(ctx context.Context, recipient identity.Address) ([]*models.ShareGrant, error)
	ListByOwner(ctx context.Context, owner identity.Address) ([]*models.ShareGrant, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Store bundles the repositories of one backend.
type Store interface {
	Nonces() NonceRepository
	Users() UserRepository
	Files() FileRepository
	Shares() ShareRepository
	Close() error
}
