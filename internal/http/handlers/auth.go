package handlers

import (
	"net/http"

	"escrow_engine/internal/auth"
	"escrow_engine/internal/logger"

	"github.com/gin-gonic/gin"
)

type authRequest struct {
	InitData string `json:"init_data" binding:"required"`
}

// Auth exchanges Telegram WebApp init_data for a JWT.
func (h *Handler) Auth(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data is required"})
		return
	}

	userID, ok := auth.ValidateInitData(req.InitData, h.BotToken)
	if !ok {
		logger.Warn("rejected telegram auth attempt", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
		return
	}

	token, err := auth.GenerateToken(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"user_id":  userID,
		"is_admin": auth.IsAdmin(userID),
	})
}
