package models

import (
	"github.com/blockvault/internal/identity"
)

// User is created on first successful login.
type User struct {
	Address       identity.Address `json:"address" bson:"address"`
	CreatedAt     int64            `json:"created_at" bson:"created_at"` // unix seconds
	SharingPubKey string           `json:"-" bson:"sharing_pubkey,omitempty"`
}

// HasSharingKey reports whether the user can receive shares.
func (u *User) HasSharingKey() bool {
	return u != nil && u.SharingPubKey != ""
}

// NonceChallenge is the single active login challenge for an address.
type NonceChallenge struct {
	Address   identity.Address `json:"address" bson:"address"`
	Nonce     string           `json:"nonce" bson:"nonce"`
	CreatedAt int64            `json:"created_at" bson:"created_at"` // unix seconds
}

type GetNonceRequest struct {
	Address string `json:"address" binding:"required"`
}

type GetNonceResponse struct {
	Address identity.Address `json:"address"`
	Nonce   string           `json:"nonce"`
	Message string           `json:"message"`
}

type LoginRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type LoginResponse struct {
	Token     string           `json:"token"`
	Address   identity.Address `json:"address"`
	ExpiresAt int64            `json:"expires_at"`
}

type MeResponse struct {
	Address   identity.Address `json:"address"`
	Role      string           `json:"role"`
	RoleValue int              `json:"role_value"`
}

type ProfileResponse struct {
	Address      identity.Address `json:"address"`
	Role         string           `json:"role"`
	RoleValue    int              `json:"role_value"`
	HasPublicKey bool             `json:"has_public_key"`
	PublicKeyPEM string           `json:"public_key_pem,omitempty"`
}

type PublicKeyRequest struct {
	PublicKeyPEM string `json:"public_key_pem" binding:"required"`
}
