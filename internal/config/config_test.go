package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  mode: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Address)
	assert.Equal(t, 60*time.Minute, cfg.Auth.TokenExpiry)
	assert.Equal(t, 300*time.Second, cfg.Auth.NonceTTL)
	assert.Equal(t, "owner", cfg.RBAC.DefaultRole)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "database", cfg.Cache.Type)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.False(t, cfg.IPFS.Enabled)
	assert.Equal(t, "https://ipfs.io/ipfs", cfg.IPFS.GatewayURL)
	assert.Equal(t, "/dns/localhost/tcp/5001/http", cfg.IPFS.APIURL)
	assert.Equal(t, 10*time.Second, cfg.IPFS.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Database.OpTimeout)
	assert.Equal(t, gin.TestMode, cfg.GetGINMode())
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  mode: debug
auth:
  jwt_secret: file-secret
  token_expiry: 15m
rbac:
  admins:
    - "0x1111111111111111111111111111111111111111"
database:
  type: postgres
  postgres:
    host: db
    port: 6543
    username: bv
    password: pw
    database: vault
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenExpiry)
	assert.Equal(t, []string{"0x1111111111111111111111111111111111111111"}, cfg.RBAC.Admins)
	assert.Equal(t, "host=db port=6543 user=bv password=pw dbname=vault sslmode=disable", cfg.GetDSN())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  mode: test\n")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("JWT_EXP_MINUTES", "5")
	t.Setenv("MONGO_URI", "memory://test")
	t.Setenv("IPFS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.TokenExpiry)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.True(t, cfg.IPFS.Enabled)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{Mode: "debug"},
			Auth:     AuthConfig{JWTSecret: "s", TokenExpiry: time.Minute, NonceTTL: time.Minute},
			Database: DatabaseConfig{Type: "memory"},
			Cache:    CacheConfig{Type: "database"},
			Storage:  StorageConfig{Type: "local"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.Type = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Mode = "release"
	cfg.Auth.JWTSecret = defaultJWTSecret
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.IPFS = IPFSConfig{Enabled: true, Mode: "ftp"}
	assert.Error(t, cfg.Validate())
}

func TestDevMintAllowed(t *testing.T) {
	cfg := Config{Server: ServerConfig{Mode: "debug"}, Auth: AuthConfig{DevMintEnabled: true}}
	assert.True(t, cfg.DevMintAllowed())

	cfg.Server.Mode = "release"
	assert.False(t, cfg.DevMintAllowed())
}
