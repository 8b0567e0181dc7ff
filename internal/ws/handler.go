package ws

import (
	"encoding/json"
	"net/http"

	"escrow_engine/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is the only inbound message shape: subscribe/unsubscribe to
// a transaction's event stream.
type clientMessage struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
}

func (c *Client) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "subscribe":
		if msg.TransactionID != "" {
			c.watch(msg.TransactionID)
		}
	case "unsubscribe":
		if msg.TransactionID != "" {
			c.unwatch(msg.TransactionID)
		}
	}
}

// Handler upgrades an authenticated request to a websocket subscription.
// Auth runs in middleware before this; user_id and is_admin come from the
// gin context.
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		uidVal, ok := c.Get("user_id")
		userID, okCast := uidVal.(int64)
		if !ok || !okCast {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		admin, _ := c.Get("is_admin")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := NewClient(userID, admin == true, conn, hub)
		client.Run()
	}
}
