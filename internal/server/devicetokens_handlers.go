package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quotia/backend/internal/devicetokens"
)

type registerDeviceTokenPayload struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// handleRegisterDeviceToken upserts a push endpoint for the authenticated
// user. Re-registering a token another account owned moves it to the caller.
func (h *httpHandler) handleRegisterDeviceToken(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request registerDeviceTokenPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	platform := devicetokens.ParsePlatform(request.Platform)
	if platform == "" && strings.TrimSpace(request.Platform) != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_platform"})
		return
	}

	err := h.deviceTokens.Register(c.Request.Context(), userID, request.Token, platform)
	if errors.Is(err, devicetokens.ErrInvalidToken) || errors.Is(err, devicetokens.ErrInvalidUserID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("device token registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

func (h *httpHandler) handleDeleteDeviceToken(c *gin.Context) {
	deleted, err := h.deviceTokens.Delete(c.Request.Context(), c.Param("token"))
	if errors.Is(err, devicetokens.ErrInvalidToken) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("device token deletion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deletion_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
