package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one websocket subscriber. Non-admin clients explicitly watch
// transaction ids; admin clients see the full stream.
type Client struct {
	UserID int64
	Admin  bool
	Conn   *websocket.Conn
	Send   chan []byte

	hub     *Hub
	watchMu sync.RWMutex
	watched map[string]struct{}
}

func NewClient(userID int64, admin bool, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID:  userID,
		Admin:   admin,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		hub:     hub,
		watched: make(map[string]struct{}),
	}
}

// Run registers the client and pumps until disconnect.
func (c *Client) Run() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

func (c *Client) watches(transactionID string) bool {
	c.watchMu.RLock()
	defer c.watchMu.RUnlock()
	_, ok := c.watched[transactionID]
	return ok
}

func (c *Client) watch(transactionID string) {
	c.watchMu.Lock()
	c.watched[transactionID] = struct{}{}
	c.watchMu.Unlock()
}

func (c *Client) unwatch(transactionID string) {
	c.watchMu.Lock()
	delete(c.watched, transactionID)
	c.watchMu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
