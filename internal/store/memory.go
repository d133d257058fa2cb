package store

import (
	"context"
	"sort"
	"sync"

	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
)

// MemoryStore keeps every collection in process memory. Used for tests and
// for `database.type: memory`.
type MemoryStore struct {
	mu     sync.RWMutex
	nonces map[identity.Address]models.NonceChallenge
	users  map[identity.Address]models.User
	files  map[string]models.FileRecord
	shares map[string]models.ShareGrant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces: make(map[identity.Address]models.NonceChallenge),
		users:  make(map[identity.Address]models.User),
		files:  make(map[string]models.FileRecord),
		shares: make(map[string]models.ShareGrant),
	}
}

func (m *MemoryStore) Nonces() NonceRepository { return memoryNonces{m} }
func (m *MemoryStore) Users() UserRepository   { return memoryUsers{m} }
func (m *MemoryStore) Files() FileRepository   { return memoryFiles{m} }
func (m *MemoryStore) Shares() ShareRepository { return memoryShares{m} }
func (m *MemoryStore) Close() error            { return nil }

type memoryNonces struct{ m *MemoryStore }

func (r memoryNonces) Upsert(ctx context.Context, challenge *models.NonceChallenge) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.nonces[challenge.Address] = *challenge
	return nil
}

func (r memoryNonces) Get(ctx context.Context, address identity.Address) (*models.NonceChallenge, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	c, ok := r.m.nonces[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r memoryNonces) DeleteIfMatch(ctx context.Context, address identity.Address, nonce string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.nonces[address]
	if !ok || c.Nonce != nonce {
		return false, nil
	}
	delete(r.m.nonces, address)
	return true, nil
}

type memoryUsers struct{ m *MemoryStore }

func (r memoryUsers) EnsureUser(ctx context.Context, address identity.Address, createdAt int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[address]; !ok {
		r.m.users[address] = models.User{Address: address, CreatedAt: createdAt}
	}
	return nil
}

func (r memoryUsers) Get(ctx context.Context, address identity.Address) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r memoryUsers) SetSharingKey(ctx context.Context, address identity.Address, pem string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[address]
	if !ok {
		return ErrNotFound
	}
	u.SharingPubKey = pem
	r.m.users[address] = u
	return nil
}

type memoryFiles struct{ m *MemoryStore }

func (r memoryFiles) Insert(ctx context.Context, file *models.FileRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.files[file.ID] = *file
	return nil
}

func (r memoryFiles) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	f, ok := r.m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (r memoryFiles) ListByOwner(ctx context.Context, owner identity.Address, after *int64, limit int) ([]*models.FileRecord, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.FileRecord
	for _, f := range r.m.files {
		if f.Owner != owner {
			continue
		}
		if after != nil && f.CreatedAt <= *after {
			continue
		}
		rec := f
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryFiles) Delete(ctx context.Context, id string, owner identity.Address) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.files[id]
	if !ok || f.Owner != owner {
		return false, nil
	}
	delete(r.m.files, id)
	return true, nil
}

type memoryShares struct{ m *MemoryStore }

func (r memoryShares) Upsert(ctx context.Context, grant *models.ShareGrant) (*models.ShareGrant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for id, existing := range r.m.shares {
		if existing.FileID == grant.FileID && existing.Owner == grant.Owner && existing.Recipient == grant.Recipient {
			updated := *grant
			updated.ID = id
			updated.CreatedAt = existing.CreatedAt
			r.m.shares[id] = updated
			return &updated, nil
		}
	}

	stored := *grant
	r.m.shares[stored.ID] = stored
	return &stored, nil
}

func (r memoryShares) Get(ctx context.Context, id string) (*models.ShareGrant, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	g, ok := r.m.shares[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (r memoryShares) FindForRecipient(ctx context.Context, fileID string, recipient identity.Address) (*models.ShareGrant, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, g := range r.m.shares {
		if g.FileID == fileID && g.Recipient == recipient {
			found := g
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r memoryShares) ListByRecipient(ctx context.Context, recipient identity.Address) ([]*models.ShareGrant, error) {
	return r.list(func(g models.ShareGrant) bool { return g.Recipient == recipient }), nil
}

func (r memoryShares) ListByOwner(ctx context.Context, owner identity.Address) ([]*models.ShareGrant, error) {
	return r.list(func(g models.ShareGrant) bool { return g.Owner == owner }), nil
}

func (r memoryShares) list(keep func(models.ShareGrant) bool) []*models.ShareGrant {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*models.ShareGrant
	for _, g := range r.m.shares {
		if keep(g) {
			found := g
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

func (r memoryShares) Delete(ctx context.Context, id string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.shares[id]; !ok {
		return false, nil
	}
	delete(r.m.shares, id)
	return true, nil
}
