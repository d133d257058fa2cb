// Package users serves the caller's profile and sharing key.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/keywrap"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/rbac"
	"github.com/blockvault/internal/store"
)

var ErrUserNotFound = apperr.New(apperr.NotFound, "user not found")

// Service 用户资料服务
type Service struct {
	users store.UserRepository
}

func NewService(users store.UserRepository) *Service {
	return &Service{users: users}
}

// Profile returns the caller's role and key status, with the PEM itself
// when withKey is set.
func (s *Service) Profile(ctx context.Context, p rbac.Principal, withKey bool) (*models.ProfileResponse, error) {
	resp := &models.ProfileResponse{
		Address:   p.Address,
		Role:      p.Role.String(),
		RoleValue: int(p.Role),
	}

	u, err := s.users.Get(ctx, p.Address)
	if errors.Is(err, store.ErrNotFound) {
		// valid token minted before the user row existed
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	resp.HasPublicKey = u.HasSharingKey()
	if withKey {
		resp.PublicKeyPEM = u.SharingPubKey
	}
	return resp, nil
}

// SetPublicKey registers the RSA key other users encrypt shared passphrases
// under.
func (s *Service) SetPublicKey(ctx context.Context, p rbac.Principal, pemText string) error {
	pemText = strings.TrimSpace(pemText)
	if _, err := keywrap.ParsePublicKey(pemText); err != nil {
		return err
	}
	return s.setKey(ctx, p, pemText)
}

// RemovePublicKey stops the caller from receiving new shares. Existing
// grants are unaffected.
func (s *Service) RemovePublicKey(ctx context.Context, p rbac.Principal) error {
	return s.setKey(ctx, p, "")
}

func (s *Service) setKey(ctx context.Context, p rbac.Principal, pemText string) error {
	err := s.users.SetSharingKey(ctx, p.Address, pemText)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
