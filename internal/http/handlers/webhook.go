package handlers

import (
	"net/http"

	"escrow_engine/internal/engine"

	"github.com/gin-gonic/gin"
)

type webhookBody struct {
	WebhookID string                 `json:"webhook_id" binding:"required"`
	EventType string                 `json:"event_type" binding:"required"`
	Payload   map[string]interface{} `json:"payload"`
}

// ProviderWebhook ingests a provider callback. Always returns 200 for
// duplicates so the provider stops redelivering.
func (h *Handler) ProviderWebhook(c *gin.Context) {
	var body webhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook: " + err.Error()})
		return
	}

	headers := map[string]string{
		"User-Agent":   c.GetHeader("User-Agent"),
		"Content-Type": c.GetHeader("Content-Type"),
	}

	result, err := h.Engine.ProcessInboxWebhook(c.Request.Context(), engine.WebhookDelivery{
		Provider:  c.Param("provider"),
		WebhookID: body.WebhookID,
		EventType: body.EventType,
		Payload:   body.Payload,
		Headers:   headers,
		Signature: c.GetHeader("X-Signature"),
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
