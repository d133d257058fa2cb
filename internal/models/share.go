package models

import (
	"github.com/blockvault/internal/identity"
)

// ShareGrant gives one recipient the passphrase of one file, encrypted under
// the recipient's public key. Unique on (FileID, Owner, Recipient).
type ShareGrant struct {
	ID           string           `json:"share_id" bson:"_id"`
	FileID       string           `json:"file_id" bson:"file_id"`
	Owner        identity.Address `json:"owner" bson:"owner"`
	Recipient    identity.Address `json:"recipient" bson:"recipient"`
	EncryptedKey string           `json:"-" bson:"encrypted_key"` // base64 RSA-OAEP ciphertext
	Note         *string          `json:"note" bson:"note"`
	CreatedAt    int64            `json:"created_at" bson:"created_at"` // unix ms
	UpdatedAt    int64            `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
	ExpiresAt    *int64           `json:"expires_at" bson:"expires_at"` // unix ms, nil never expires

	// Snapshot of the file at share time.
	FileName    string `json:"file_name,omitempty" bson:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty" bson:"file_size,omitempty"`
	ContentHash string `json:"sha256,omitempty" bson:"sha256,omitempty"`
	ContentID   string `json:"cid,omitempty" bson:"cid,omitempty"`
}

// ExpiredAt reports whether the grant is past its expiry at nowMs.
func (g *ShareGrant) ExpiredAt(nowMs int64) bool {
	return g.ExpiresAt != nil && *g.ExpiresAt > 0 && nowMs > *g.ExpiresAt
}

// MissingSnapshot reports whether any denormalized file field is absent.
func (g *ShareGrant) MissingSnapshot() bool {
	return g.FileName == "" || g.FileSize == 0 || g.ContentHash == ""
}

// ShareView is the wire form of a grant. EncryptedKey is nil in every
// owner-facing view.
type ShareView struct {
	ShareID      string           `json:"share_id"`
	FileID       string           `json:"file_id"`
	Owner        identity.Address `json:"owner"`
	Recipient    identity.Address `json:"recipient"`
	EncryptedKey *string          `json:"encrypted_key"`
	Note         *string          `json:"note"`
	CreatedAt    int64            `json:"created_at"`
	ExpiresAt    *int64           `json:"expires_at"`
	FileName     string           `json:"file_name,omitempty"`
	FileSize     int64            `json:"file_size,omitempty"`
	ContentHash  string           `json:"sha256,omitempty"`
	ContentID    string           `json:"cid,omitempty"`
	GatewayURL   *string          `json:"gateway_url,omitempty"`
}

// View renders the grant. includeKey must only be true for the recipient.
func (g *ShareGrant) View(includeKey bool, gatewayURL string) ShareView {
	v := ShareView{
		ShareID:     g.ID,
		FileID:      g.FileID,
		Owner:       g.Owner,
		Recipient:   g.Recipient,
		Note:        g.Note,
		CreatedAt:   g.CreatedAt,
		ExpiresAt:   g.ExpiresAt,
		FileName:    g.FileName,
		FileSize:    g.FileSize,
		ContentHash: g.ContentHash,
		ContentID:   g.ContentID,
	}
	if includeKey {
		key := g.EncryptedKey
		v.EncryptedKey = &key
	}
	if gatewayURL != "" {
		v.GatewayURL = &gatewayURL
	}
	return v
}

type CreateShareRequest struct {
	Recipient  string  `json:"recipient" binding:"required"`
	Passphrase string  `json:"passphrase" binding:"required"`
	Note       *string `json:"note"`
	ExpiresAt  *int64  `json:"expires_at"` // unix ms
}

type ShareListResponse struct {
	Shares []ShareView `json:"shares"`
}
