package handlers

import (
	"net/http"
	"strconv"

	"escrow_engine/internal/domain"

	"github.com/gin-gonic/gin"
)

type forceStatusBody struct {
	Status domain.TransactionStatus `json:"status" binding:"required"`
	Reason string                   `json:"reason" binding:"required"`
}

// ForceStatus applies an arbitrary status change, bypassing validation.
// Admin only; the acting admin id goes into the audit trail.
func (h *Handler) ForceStatus(c *gin.Context) {
	adminID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body forceStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.Engine.ForceStatus(c.Request.Context(), c.Param("id"),
		body.Status, body.Reason, "admin:"+strconv.FormatInt(adminID, 10))
	if err != nil {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	if !result.Success {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdminGetTransaction returns any transaction without the ownership check
func (h *Handler) AdminGetTransaction(c *gin.Context) {
	txn, err := h.Engine.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}

	history, err := h.Engine.GetStatusHistory(c.Request.Context(), txn.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn, "history": history})
}
