package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
)

// DefaultTokenTTL 会话令牌有效期
const DefaultTokenTTL = 60 * time.Minute

var (
	ErrMissingToken          = apperr.New(apperr.Unauthenticated, "missing bearer token")
	ErrTokenExpired          = apperr.New(apperr.Unauthenticated, "token expired")
	ErrTokenMalformed        = apperr.New(apperr.Unauthenticated, "malformed token")
	ErrTokenInvalidSignature = apperr.New(apperr.Unauthenticated, "invalid token signature")
)

// TokenService mints and validates HS256 session tokens. Tokens are never
// stored server-side.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint 生成令牌
func (s *TokenService) Mint(address identity.Address) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   address.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate 验证令牌
//
// The three failure modes stay distinct for logging.
func (s *TokenService) Validate(token string) (identity.Address, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return s.secret, nil }
	_, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", ErrTokenInvalidSignature
	default:
		return "", apperr.Wrap(ErrTokenMalformed, err)
	}

	address, err := identity.Normalize(claims.Subject)
	if err != nil {
		return "", ErrTokenMalformed
	}
	return address, nil
}
