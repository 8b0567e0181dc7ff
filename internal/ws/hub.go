package ws

import (
	"encoding/json"
	"sync"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"
)

// Hub fans engine events out to connected websocket clients. Admin clients
// receive every event; regular clients only receive events for transactions
// they explicitly subscribed to.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *domain.EngineEvent
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *domain.EngineEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client set. Start once; stop with Close.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			logger.Debug("ws client connected", "user_id", c.UserID, "admin", c.Admin)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.Send)
			}
			h.mu.Unlock()
			logger.Debug("ws client disconnected", "user_id", c.UserID)

		case event := <-h.broadcast:
			h.deliver(event)

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.Send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Close shuts the hub down and disconnects all clients.
func (h *Hub) Close() {
	close(h.done)
}

// PublishEvent implements the engine's event sink. Never blocks: if the
// broadcast buffer is full the event is dropped, the durable audit trail is
// the database, not this stream.
func (h *Hub) PublishEvent(event *domain.EngineEvent) {
	select {
	case h.broadcast <- event:
	default:
		logger.Warn("ws broadcast buffer full, event dropped", "event_type", event.EventType)
	}
}

func (h *Hub) deliver(event *domain.EngineEvent) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":  "engine_event",
		"event": event,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.Admin && !c.watches(event.TransactionID) {
			continue
		}
		select {
		case c.Send <- msg:
		default:
			// slow client; skip rather than stall the hub
		}
	}
}
