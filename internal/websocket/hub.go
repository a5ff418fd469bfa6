package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Entities and actions published to renderers.
const (
	EntityTheme       = "theme"
	EntityPreferences = "preferences"
	EntityOnboarding  = "onboarding"
	EntitySession     = "session"
	EntityRoute       = "route"
	EntityState       = "state"

	ActionUpdated   = "updated"
	ActionCompleted = "completed"
	ActionDecided   = "decided"
	ActionSnapshot  = "snapshot"
)

// Message is a state-change notification. Data carries the new state of
// the entity so renderers do not need to refetch.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// NewMessage creates a Message whose Type is entity_action.
func NewMessage(entity, action string, data any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		Data:   data,
	}
}

// Hub tracks connected renderers and fans state changes out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client registered", "clients", n)
}

// Unregister removes c and closes its send channel. It is safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	return data, nil
}

// Broadcast queues msg for every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.logger.Error("broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients behind, message dropped", "type", msg.Type, "dropped", dropped)
	}
}

// Send queues msg for a single registered client.
func (h *Hub) Send(c *Client, msg Message) bool {
	data, err := encode(msg)
	if err != nil {
		h.logger.Error("send", "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
