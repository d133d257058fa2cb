package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "dev-jwt-secret-change"

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	RBAC     RBACConfig     `mapstructure:"rbac"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	IPFS     IPFSConfig     `mapstructure:"ipfs"`
	Files    FilesConfig    `mapstructure:"files"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	EnableCORS     bool          `mapstructure:"enable_cors"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenExpiry    time.Duration `mapstructure:"token_expiry"`
	NonceTTL       time.Duration `mapstructure:"nonce_ttl"`
	DevMintEnabled bool          `mapstructure:"dev_mint_enabled"`
}

// RBACConfig 角色配置
type RBACConfig struct {
	DefaultRole string   `mapstructure:"default_role"`
	Admins      []string `mapstructure:"admins"`
	Viewers     []string `mapstructure:"viewers"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type      string         `mapstructure:"type"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite"`
	Mongo     MongoConfig    `mapstructure:"mongo"`
	OpTimeout time.Duration  `mapstructure:"op_timeout"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// MongoConfig MongoDB配置
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// CacheConfig 登录挑战存储配置
type CacheConfig struct {
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// StorageConfig 加密文件存储配置
type StorageConfig struct {
	Type    string        `mapstructure:"type"`
	MinIO   MinIOConfig   `mapstructure:"minio"`
	Local   LocalConfig   `mapstructure:"local"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	BucketName string `mapstructure:"bucket_name"`
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	RootPath string `mapstructure:"root_path"`
}

// IPFSConfig 内容寻址存储配置
type IPFSConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Mode       string        `mapstructure:"mode"`
	APIURL     string        `mapstructure:"api_url"`
	APIToken   string        `mapstructure:"api_token"`
	GatewayURL string        `mapstructure:"gateway_url"`
	BadgerPath string        `mapstructure:"badger_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// FilesConfig 文件加密配置
type FilesConfig struct {
	Compress bool `mapstructure:"compress"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 加载配置
//
// An empty configFile falls back to the search paths.
func Load(configFile string) (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/blockvault")
		v.AddConfigPath("$HOME/.blockvault")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	setEnvOverrides(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.max_upload_bytes", int64(100<<20))
	v.SetDefault("auth.jwt_secret", defaultJWTSecret)
	v.SetDefault("auth.token_expiry", 60*time.Minute)
	v.SetDefault("auth.nonce_ttl", 300*time.Second)
	v.SetDefault("auth.dev_mint_enabled", false)
	v.SetDefault("rbac.default_role", "owner")
	v.SetDefault("rbac.admins", []string{})
	v.SetDefault("rbac.viewers", []string{})
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "./data/blockvault.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "blockvault")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.mongo.uri", "mongodb://localhost:27017/blockvault")
	v.SetDefault("database.mongo.database", "blockvault")
	v.SetDefault("database.op_timeout", 5*time.Second)
	v.SetDefault("cache.type", "database")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.timeout", 3*time.Second)
	v.SetDefault("cache.redis.key_prefix", "blockvault:")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.timeout", 10*time.Second)
	v.SetDefault("storage.local.root_path", "./data/blobs")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket_name", "blockvault-blobs")
	v.SetDefault("ipfs.enabled", false)
	v.SetDefault("ipfs.mode", "http")
	v.SetDefault("ipfs.api_url", "/dns/localhost/tcp/5001/http")
	v.SetDefault("ipfs.gateway_url", "https://ipfs.io/ipfs")
	v.SetDefault("ipfs.badger_path", "./data/cas")
	v.SetDefault("ipfs.timeout", 10*time.Second)
	v.SetDefault("files.compress", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// setEnvOverrides 设置环境变量覆盖
func setEnvOverrides(v *viper.Viper) {
	// 服务器配置
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		v.Set("server.address", addr)
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		v.Set("server.mode", mode)
	}

	// 认证配置
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		v.Set("auth.jwt_secret", secret)
	}
	if minutes := os.Getenv("JWT_EXP_MINUTES"); minutes != "" {
		if n, err := strconv.Atoi(minutes); err == nil {
			v.Set("auth.token_expiry", time.Duration(n)*time.Minute)
		}
	}

	// 数据库配置
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		v.Set("database.mongo.uri", uri)
		if strings.HasPrefix(uri, "memory://") {
			v.Set("database.type", "memory")
		}
	}
	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		v.Set("database.postgres.host", pgHost)
	}
	if pgPort := os.Getenv("POSTGRES_PORT"); pgPort != "" {
		if port, err := strconv.Atoi(pgPort); err == nil {
			v.Set("database.postgres.port", port)
		}
	}
	if pgUser := os.Getenv("POSTGRES_USERNAME"); pgUser != "" {
		v.Set("database.postgres.username", pgUser)
	}
	if pgPassword := os.Getenv("POSTGRES_PASSWORD"); pgPassword != "" {
		v.Set("database.postgres.password", pgPassword)
	}

	// Redis配置
	if redisAddr := os.Getenv("REDIS_ADDRESS"); redisAddr != "" {
		v.Set("cache.redis.address", redisAddr)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("cache.redis.password", redisPassword)
	}

	// MinIO配置
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		v.Set("storage.minio.endpoint", endpoint)
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		v.Set("storage.minio.access_key", accessKey)
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		v.Set("storage.minio.secret_key", secretKey)
	}

	// IPFS配置
	if enabled := os.Getenv("IPFS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			v.Set("ipfs.enabled", b)
		}
	}
	if apiURL := os.Getenv("IPFS_API_URL"); apiURL != "" {
		v.Set("ipfs.api_url", apiURL)
	}
	if token := os.Getenv("IPFS_API_TOKEN"); token != "" {
		v.Set("ipfs.api_token", token)
	}
	if gw := os.Getenv("IPFS_GATEWAY_URL"); gw != "" {
		v.Set("ipfs.gateway_url", gw)
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "memory", "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}
	switch c.Cache.Type {
	case "database", "redis":
	default:
		return fmt.Errorf("unsupported cache.type %q", c.Cache.Type)
	}
	switch c.Storage.Type {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported storage.type %q", c.Storage.Type)
	}
	if c.IPFS.Enabled {
		switch c.IPFS.Mode {
		case "http", "badger":
		default:
			return fmt.Errorf("unsupported ipfs.mode %q", c.IPFS.Mode)
		}
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set")
	}
	if c.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		return errors.New("auth.jwt_secret must be changed in release mode")
	}
	if c.Auth.TokenExpiry <= 0 {
		return errors.New("auth.token_expiry must be positive")
	}
	if c.Auth.NonceTTL <= 0 {
		return errors.New("auth.nonce_ttl must be positive")
	}
	return nil
}

// GetDSN 获取数据库连接字符串
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "postgres":
		return buildPostgresDSN(c.Database.Postgres)
	case "sqlite":
		return c.Database.SQLite.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	case "mongo":
		return c.Database.Mongo.URI
	default:
		return ""
	}
}

// buildPostgresDSN 构建PostgreSQL DSN
func buildPostgresDSN(config PostgresConfig) string {
	dsn := "host=" + config.Host
	dsn += " port=" + strconv.Itoa(config.Port)
	dsn += " user=" + config.Username
	dsn += " password=" + config.Password
	dsn += " dbname=" + config.Database
	dsn += " sslmode=" + config.SSLMode
	return dsn
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "production" || c.Server.Mode == "release"
}

// DevMintAllowed reports whether the dev-only token endpoint may be mounted.
func (c *Config) DevMintAllowed() bool {
	return c.Auth.DevMintEnabled && !c.IsProduction()
}

// GetGINMode 获取Gin模式
func (c *Config) GetGINMode() string {
	switch c.Server.Mode {
	case "debug":
		return gin.DebugMode
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
