package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/internal/middleware"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/share"
)

// handleCreateShare 共享文件
//
// The response is owner-facing and carries no key material.
func handleCreateShare(manager *share.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var req models.CreateShareRequest
		if !bindJSON(c, &req) {
			return
		}

		grant, err := manager.CreateOrUpdate(c.Request.Context(), p, c.Param("id"), req)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, grant.View(false, ""))
	}
}

func handleListIncoming(manager *share.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		shares, err := manager.ListIncoming(c.Request.Context(), p)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ShareListResponse{Shares: shares})
	}
}

func handleListOutgoing(manager *share.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		shares, err := manager.ListOutgoing(c.Request.Context(), p)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ShareListResponse{Shares: shares})
	}
}

// handleRevokeShare 撤销共享
func handleRevokeShare(manager *share.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}

		shareID := c.Param("id")
		if err := manager.Revoke(c.Request.Context(), p, shareID); err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "revoked", "share_id": shareID})
	}
}
