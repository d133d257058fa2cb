package models

import (
	"github.com/blockvault/internal/identity"
)

// FileRecord describes one encrypted upload. Owned exclusively by Owner.
type FileRecord struct {
	ID           string           `json:"file_id" bson:"_id"`
	Owner        identity.Address `json:"owner" bson:"owner"`
	OriginalName string           `json:"name" bson:"original_name"`
	EncBlobRef   string           `json:"-" bson:"enc_filename"`
	Size         int64            `json:"size" bson:"size"`
	CreatedAt    int64            `json:"created_at" bson:"created_at"` // unix ms
	AAD          *string          `json:"aad" bson:"aad"`
	ContentHash  string           `json:"sha256" bson:"sha256"`
	ContentID    string           `json:"cid,omitempty" bson:"cid,omitempty"`
}

// AADBytes returns the additional authenticated data, nil when unset.
func (f *FileRecord) AADBytes() []byte {
	if f.AAD == nil || *f.AAD == "" {
		return nil
	}
	return []byte(*f.AAD)
}

type FileView struct {
	FileID      string  `json:"file_id"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	CreatedAt   int64   `json:"created_at"`
	AAD         *string `json:"aad"`
	ContentHash string  `json:"sha256"`
	ContentID   *string `json:"cid"`
	GatewayURL  *string `json:"gateway_url"`
}

// View renders the record for its owner.
func (f *FileRecord) View(gatewayURL string) FileView {
	v := FileView{
		FileID:      f.ID,
		Name:        f.OriginalName,
		Size:        f.Size,
		CreatedAt:   f.CreatedAt,
		AAD:         f.AAD,
		ContentHash: f.ContentHash,
	}
	if f.ContentID != "" {
		cid := f.ContentID
		v.ContentID = &cid
	}
	if gatewayURL != "" {
		v.GatewayURL = &gatewayURL
	}
	return v
}

type UploadResponse struct {
	FileID      string  `json:"file_id"`
	Name        string  `json:"name"`
	ContentHash string  `json:"sha256"`
	ContentID   *string `json:"cid"`
	GatewayURL  *string `json:"gateway_url"`
}

type FileListResponse struct {
	Items     []FileView `json:"items"`
	NextAfter *int64     `json:"next_after"`
	HasMore   bool       `json:"has_more"`
}

type VerifyResponse struct {
	FileID           string  `json:"file_id"`
	HasEncryptedBlob bool    `json:"has_encrypted_blob"`
	ContentID        *string `json:"cid"`
	ContentHash      string  `json:"sha256"`
}
