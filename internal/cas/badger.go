package cas

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// BadgerStore is a local CAS keyed by CIDv1 (raw codec, sha2-256).
type BadgerStore struct {
	db *badger.DB
}

func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// ComputeCID returns the CIDv1 of data as a raw block.
func ComputeCID(data []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, err
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

func (s *BadgerStore) Add(ctx context.Context, data []byte) (string, error) {
	c, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.Bytes(), data)
	})
	if err != nil {
		return "", fmt.Errorf("badger put: %w", err)
	}
	return c.String(), nil
}

func (s *BadgerStore) Cat(ctx context.Context, cid string) ([]byte, error) {
	c, err := gocid.Decode(cid)
	if err != nil {
		return nil, fmt.Errorf("invalid cid %q: %w", cid, err)
	}

	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.Bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}

	got, err := ComputeCID(data)
	if err != nil || !got.Equals(c) {
		return nil, fmt.Errorf("badger get: content does not match %s", cid)
	}
	return data, nil
}

func (s *BadgerStore) Unpin(ctx context.Context, cid string) error {
	c, err := gocid.Decode(cid)
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", cid, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.Bytes())
	})
}

// GatewayURL is empty: local content is not reachable through a gateway.
func (s *BadgerStore) GatewayURL(string) string { return "" }

func (s *BadgerStore) Enabled() bool { return true }

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
