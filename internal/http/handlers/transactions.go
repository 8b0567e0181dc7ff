package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"escrow_engine/internal/domain"

	"github.com/gin-gonic/gin"
)

// CreateTransaction accepts a new transaction and returns immediately; the
// engine processes it in the background.
func (h *Handler) CreateTransaction(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req domain.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	// the authenticated user owns the transaction regardless of the body
	req.UserID = userID

	result, err := h.Engine.CreateTransaction(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidAmount) || result.ErrorCode == "missing_fields" {
			status = http.StatusBadRequest
		}
		c.JSON(status, result)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// GetTransaction returns one transaction; owners and admins only
func (h *Handler) GetTransaction(c *gin.Context) {
	txn, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, txn)
}

// GetTransactionHistory returns the status transition log
func (h *Handler) GetTransactionHistory(c *gin.Context) {
	txn, ok := h.loadOwned(c)
	if !ok {
		return
	}

	history, err := h.Engine.GetStatusHistory(c.Request.Context(), txn.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": txn.ID, "history": history})
}

// ListTransactions returns the authenticated user's recent transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	txns, err := h.Engine.ListTransactionsByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// CancelTransaction requests cancellation of a transaction
func (h *Handler) CancelTransaction(c *gin.Context) {
	txn, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "cancelled by user"
	}

	result, err := h.Engine.CancelTransaction(c.Request.Context(), txn.ID, body.Reason)
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

// RetryTransaction re-drives a failed transaction
func (h *Handler) RetryTransaction(c *gin.Context) {
	txn, ok := h.loadOwned(c)
	if !ok {
		return
	}

	result, err := h.Engine.RetryTransaction(c.Request.Context(), txn.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	if !result.Success {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// loadOwned fetches the transaction from the path id and enforces that the
// caller owns it or is an admin. Writes the error response itself.
func (h *Handler) loadOwned(c *gin.Context) (*domain.Transaction, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	txn, err := h.Engine.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transaction"})
		}
		return nil, false
	}

	if txn.UserID != userID && !isAdmin(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return nil, false
	}
	return txn, true
}
