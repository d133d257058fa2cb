package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/store"
)

const (
	nonceBytes = 16

	// DefaultNonceTTL 登录挑战有效期
	DefaultNonceTTL = 300 * time.Second
)

var (
	ErrNoChallenge       = apperr.New(apperr.InvalidInput, "no active nonce for address, request a new one")
	ErrChallengeExpired  = apperr.New(apperr.InvalidInput, "nonce expired, request a new one")
	ErrSignatureMismatch = apperr.New(apperr.Unauthenticated, "signature does not match address")
)

// LoginMessage is the exact text a wallet signs for nonce.
func LoginMessage(nonce string) string {
	return "BlockVault login nonce: " + nonce
}

// NonceStore issues and consumes single-use login challenges.
type NonceStore struct {
	repo store.NonceRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewNonceStore(repo store.NonceRepository, ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceStore{repo: repo, ttl: ttl, now: time.Now}
}

// Issue replaces any outstanding challenge for address with a fresh one.
func (s *NonceStore) Issue(ctx context.Context, address identity.Address) (*models.GetNonceResponse, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	err := s.repo.Upsert(ctx, &models.NonceChallenge{
		Address:   address,
		Nonce:     nonce,
		CreatedAt: s.now().Unix(),
	})
	if err != nil {
		return nil, err
	}

	return &models.GetNonceResponse{
		Address: address,
		Nonce:   nonce,
		Message: LoginMessage(nonce),
	}, nil
}

// Consume checks signature against the stored challenge and deletes it.
// The message is rebuilt from the stored nonce, never taken from the client.
// A mismatching signature leaves the challenge in place.
func (s *NonceStore) Consume(ctx context.Context, address identity.Address, signature []byte) error {
	c, err := s.repo.Get(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoChallenge
	}
	if err != nil {
		return err
	}

	if s.now().Unix()-c.CreatedAt > int64(s.ttl/time.Second) {
		return ErrChallengeExpired
	}

	ok, err := identity.VerifySignedMessage(LoginMessage(c.Nonce), signature, address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureMismatch
	}

	// compare-and-delete: of two concurrent logins only one removes it
	deleted, err := s.repo.DeleteIfMatch(ctx, address, c.Nonce)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNoChallenge
	}
	return nil
}
