package auth

import (
	"context"
	"time"

	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/store"
)

// Service 认证服务
//
// It runs the wallet login flow and mints session tokens.
type Service struct {
	nonces *NonceStore
	tokens *TokenService
	users  store.UserRepository
	now    func() time.Time
}

func NewService(nonces *NonceStore, tokens *TokenService, users store.UserRepository) *Service {
	return &Service{nonces: nonces, tokens: tokens, users: users, now: time.Now}
}

// Tokens exposes the token service for the authentication middleware.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// GetNonce 获取登录挑战
func (s *Service) GetNonce(ctx context.Context, rawAddress string) (*models.GetNonceResponse, error) {
	address, err := identity.Normalize(rawAddress)
	if err != nil {
		return nil, err
	}
	return s.nonces.Issue(ctx, address)
}

// Login 钱包签名登录
//
// The user record is created on first success.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	address, err := identity.Normalize(req.Address)
	if err != nil {
		return nil, err
	}
	signature, err := identity.DecodeSignature(req.Signature)
	if err != nil {
		return nil, err
	}

	if err := s.nonces.Consume(ctx, address, signature); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, address)
}

// DevToken mints a session without a signature. Only mounted outside
// release mode with auth.dev_mint_enabled.
func (s *Service) DevToken(ctx context.Context, rawAddress string) (*models.LoginResponse, error) {
	address, err := identity.Normalize(rawAddress)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, address)
}

func (s *Service) issueSession(ctx context.Context, address identity.Address) (*models.LoginResponse, error) {
	if err := s.users.EnsureUser(ctx, address, s.now().Unix()); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.Mint(address)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:     token,
		Address:   address,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}
