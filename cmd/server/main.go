package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/blockvault/internal/auth"
	"github.com/blockvault/internal/cas"
	"github.com/blockvault/internal/cipher"
	"github.com/blockvault/internal/config"
	"github.com/blockvault/internal/files"
	"github.com/blockvault/internal/rbac"
	"github.com/blockvault/internal/share"
	"github.com/blockvault/internal/storage"
	"github.com/blockvault/internal/store"
	"github.com/blockvault/internal/users"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to config file")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)
	gin.SetMode(cfg.GetGINMode())

	ctx := context.Background()

	// Document store
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Blob storage
	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create blob storage: %v", err)
	}
	logger.WithField("type", cfg.Storage.Type).Info("Blob storage initialized")

	casStore, err := cas.New(cfg.IPFS)
	if err != nil {
		logger.Fatalf("Failed to create content-addressed store: %v", err)
	}
	if closer, ok := casStore.(io.Closer); ok {
		defer closer.Close()
	}
	logger.WithFields(logrus.Fields{"enabled": casStore.Enabled(), "mode": cfg.IPFS.Mode}).Info("Content-addressed store initialized")

	svc, err := newServices(cfg, st, blobs, casStore, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize services: %v", err)
	}

	router := newRouter(cfg, svc, logger)

	srv := &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("Starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// newServices wires the domain services over the opened backends.
func newServices(cfg *config.Config, st store.Store, blobs storage.BlobStore, casStore cas.Store, logger *logrus.Logger) (*services, error) {
	defaultRole, err := rbac.ParseRole(cfg.RBAC.DefaultRole)
	if err != nil {
		return nil, err
	}
	resolver, err := rbac.NewStaticResolver(defaultRole, cfg.RBAC.Admins, cfg.RBAC.Viewers)
	if err != nil {
		return nil, err
	}

	nonces := auth.NewNonceStore(st.Nonces(), cfg.Auth.NonceTTL)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	access := share.NewAccessController(st.Files(), st.Shares())
	fileOpts := files.Options{
		Cipher:    cipher.Options{Compress: cfg.Files.Compress},
		OpTimeout: cfg.Storage.Timeout,
	}

	return &services{
		auth:     auth.NewService(nonces, tokens, st.Users()),
		resolver: resolver,
		files:    files.NewService(st.Files(), blobs, casStore, access, fileOpts, logger),
		shares:   share.NewManager(st.Files(), st.Users(), st.Shares(), casStore, logger),
		users:    users.NewService(st.Users()),
	}, nil
}
