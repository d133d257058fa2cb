package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blockvault/internal/config"
)

// Open selects the backend named by database.type and, when cache.type is
// redis, moves login challenges to Redis.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Store, error) {
	var (
		s   Store
		err error
	)

	timeout := cfg.Database.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	switch cfg.Database.Type {
	case "memory":
		s = NewMemoryStore()
	case "sqlite":
		if dir := filepath.Dir(cfg.Database.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err = OpenSQL(ctx, DialectSQLite, cfg.GetDSN(), timeout, logger)
	case "postgres":
		s, err = OpenSQL(ctx, DialectPostgres, cfg.GetDSN(), timeout, logger)
	case "mongo":
		s, err = OpenMongo(ctx, cfg.Database.Mongo.URI, cfg.Database.Mongo.Database, timeout)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, err
	}
	logger.WithField("type", cfg.Database.Type).Info("Document store ready")

	if cfg.Cache.Type != "redis" {
		return s, nil
	}

	rc := cfg.Cache.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Address,
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		s.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.WithField("address", rc.Address).Info("Connected to Redis")

	return redisBacked{
		Store:  s,
		nonces: NewRedisNonces(client, rc.KeyPrefix, cfg.Auth.NonceTTL, rc.Timeout),
		client: client,
	}, nil
}
