package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/internal/middleware"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/users"
)

func handleGetProfile(userService *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		withKey := c.Query("with_key") == "1" || c.Query("with_key") == "true"
		resp, err := userService.Profile(c.Request.Context(), p, withKey)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleSetPublicKey(userService *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var req models.PublicKeyRequest
		if !bindJSON(c, &req) {
			return
		}

		if err := userService.SetPublicKey(c.Request.Context(), p, req.PublicKeyPEM); err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "has_public_key": true})
	}
}

func handleRemovePublicKey(userService *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		if err := userService.RemovePublicKey(c.Request.Context(), p); err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "has_public_key": false})
	}
}
