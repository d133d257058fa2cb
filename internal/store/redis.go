package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
	"github.com/blockvault/internal/models"
)

// nonceGrace keeps a challenge readable slightly past its TTL so the auth
// layer still reports it as expired rather than missing.
const nonceGrace = time.Minute

var deleteIfMatch = redis.NewScript(`
if redis.call("HGET", KEYS[1], "nonce") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisNonces keeps login challenges in Redis hashes that expire on their
// own.
type RedisNonces struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisNonces(client *redis.Client, prefix string, ttl, timeout time.Duration) *RedisNonces {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &RedisNonces{client: client, prefix: prefix, ttl: ttl, timeout: timeout}
}

func (r *RedisNonces) key(address identity.Address) string {
	return r.prefix + "nonce:" + address.String()
}

func (r *RedisNonces) Upsert(ctx context.Context, c *models.NonceChallenge) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.key(c.Address)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "nonce", c.Nonce, "created_at", c.CreatedAt)
		pipe.Expire(ctx, key, r.ttl+nonceGrace)
		return nil
	})
	return apperr.Upstream("nonce cache", err)
}

func (r *RedisNonces) Get(ctx context.Context, address identity.Address) (*models.NonceChallenge, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vals, err := r.client.HGetAll(ctx, r.key(address)).Result()
	if err != nil {
		return nil, apperr.Upstream("nonce cache", err)
	}
	nonce, ok := vals["nonce"]
	if !ok {
		return nil, ErrNotFound
	}
	createdAt, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return nil, apperr.Upstream("nonce cache", err)
	}
	return &models.NonceChallenge{Address: address, Nonce: nonce, CreatedAt: createdAt}, nil
}

func (r *RedisNonces) DeleteIfMatch(ctx context.Context, address identity.Address, nonce string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := deleteIfMatch.Run(ctx, r.client, []string{r.key(address)}, nonce).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, apperr.Upstream("nonce cache", err)
	}
	return n > 0, nil
}

// redisBacked swaps the nonce repository of another store for Redis.
type redisBacked struct {
	Store
	nonces *RedisNonces
	client *redis.Client
}

func (s redisBacked) Nonces() NonceRepository { return s.nonces }

func (s redisBacked) Close() error {
	err := s.Store.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
