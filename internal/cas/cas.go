// Package cas pins encrypted blobs to a content-addressed store so a file
// survives loss of the primary blob storage.
package cas

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockvault/internal/config"
)

var (
	ErrDisabled = errors.New("content-addressed storage disabled")
	ErrNotFound = errors.New("content not found")
)

// Store 内容寻址存储
type Store interface {
	// Add stores and pins data, returning its CID.
	Add(ctx context.Context, data []byte) (string, error)
	Cat(ctx context.Context, cid string) ([]byte, error)
	Unpin(ctx context.Context, cid string) error
	// GatewayURL is the public URL of cid, or "" when there is none.
	GatewayURL(cid string) string
	Enabled() bool
}

// New builds the backend selected by the ipfs config section.
func New(cfg config.IPFSConfig) (Store, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}
	switch cfg.Mode {
	case "http", "":
		return NewIPFSClient(cfg)
	case "badger":
		return OpenBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unsupported ipfs mode: %s", cfg.Mode)
	}
}

// Disabled is the no-op store used when ipfs.enabled is false.
type Disabled struct{}

func (Disabled) Add(context.Context, []byte) (string, error) { return "", ErrDisabled }
func (Disabled) Cat(context.Context, string) ([]byte, error) { return nil, ErrDisabled }
func (Disabled) Unpin(context.Context, string) error         { return nil }
func (Disabled) GatewayURL(string) string                    { return "" }
func (Disabled) Enabled() bool                               { return false }
