package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/auth"
	"github.com/blockvault/internal/config"
	"github.com/blockvault/internal/files"
	"github.com/blockvault/internal/middleware"
	"github.com/blockvault/internal/rbac"
	"github.com/blockvault/internal/share"
	"github.com/blockvault/internal/users"
)

const serviceName = "BlockVault"

var errInvalidBody = apperr.New(apperr.InvalidInput, "invalid request body")

// services bundles everything the handlers call into.
type services struct {
	auth     *auth.Service
	resolver rbac.Resolver
	files    *files.Service
	shares   *share.Manager
	users    *users.Service
}

func newRouter(cfg *config.Config, svc *services, logger *logrus.Logger) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	if cfg.Server.EnableCORS {
		router.Use(middleware.CORSMiddleware())
	}

	devMint := cfg.DevMintAllowed()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})
	router.GET("/", handleIndex(devMint))

	requireAuth := middleware.AuthMiddleware(svc.auth.Tokens(), svc.resolver)

	// Auth routes
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/get_nonce", handleGetNonce(svc.auth))
		authGroup.POST("/login", handleLogin(svc.auth))
		authGroup.GET("/me", requireAuth, handleGetMe())
		if devMint {
			logger.Warn("Dev token minting enabled")
			authGroup.POST("/dev_token", handleDevToken(svc.auth))
		}
	}

	// User routes
	userGroup := router.Group("/users")
	userGroup.Use(requireAuth)
	{
		userGroup.GET("/profile", handleGetProfile(svc.users))
		userGroup.POST("/public_key", handleSetPublicKey(svc.users))
		userGroup.DELETE("/public_key", handleRemovePublicKey(svc.users))
	}

	// File routes
	fileGroup := router.Group("/files")
	fileGroup.Use(requireAuth)
	{
		fileGroup.POST("", middleware.MaxBodyMiddleware(cfg.Server.MaxUploadBytes), handleUpload(svc.files))
		fileGroup.GET("", handleListFiles(svc.files))
		fileGroup.GET("/shared", handleListIncoming(svc.shares))
		fileGroup.GET("/shares/outgoing", handleListOutgoing(svc.shares))
		fileGroup.DELETE("/shares/:id", handleRevokeShare(svc.shares))
		fileGroup.GET("/:id", handleDownload(svc.files))
		fileGroup.DELETE("/:id", handleDeleteFile(svc.files))
		fileGroup.GET("/:id/verify", handleVerifyFile(svc.files))
		fileGroup.POST("/:id/share", handleCreateShare(svc.shares))
	}

	return router
}

// handleIndex 服务概览
func handleIndex(devMint bool) gin.HandlerFunc {
	endpoints := []string{
		"/health",
		"/auth/get_nonce",
		"/auth/login",
		"/auth/me",
		"/users/profile",
		"/users/public_key",
		"/files",
		"/files/shared",
		"/files/shares/outgoing",
	}
	if devMint {
		endpoints = append(endpoints, "/auth/dev_token")
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":      serviceName,
			"message":   "BlockVault backend running",
			"endpoints": endpoints,
		})
	}
}

// principal returns the caller bound by the auth middleware. Routes without
// it are a wiring bug.
func principal(c *gin.Context) (rbac.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		middleware.RespondError(c, auth.ErrMissingToken)
	}
	return p, ok
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.RespondError(c, apperr.Wrap(errInvalidBody, err))
		return false
	}
	return true
}
