// Package storage holds encrypted blobs by name.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/blockvault/internal/config"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 加密文件存储
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// New builds the backend named by storage.type.
func New(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.Storage.Type {
	case "local":
		return NewLocalStore(cfg.Storage.Local.RootPath)
	case "minio":
		return NewMinIOStore(ctx, cfg.Storage.MinIO)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// normalizeName rejects anything that is not a flat object name.
func normalizeName(name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" || clean != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return clean, nil
}
