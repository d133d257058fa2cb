package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/internal/auth"
	"github.com/blockvault/internal/middleware"
	"github.com/blockvault/internal/models"
)

// handleGetNonce 获取登录挑战
func handleGetNonce(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.GetNonceRequest
		if !bindJSON(c, &req) {
			return
		}

		resp, err := authService.GetNonce(c.Request.Context(), req.Address)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// handleLogin 钱包签名登录
func handleLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if !bindJSON(c, &req) {
			return
		}

		resp, err := authService.Login(c.Request.Context(), req)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleDevToken(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.GetNonceRequest
		if !bindJSON(c, &req) {
			return
		}

		resp, err := authService.DevToken(c.Request.Context(), req.Address)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, models.MeResponse{
			Address:   p.Address,
			Role:      p.Role.String(),
			RoleValue: int(p.Role),
		})
	}
}
