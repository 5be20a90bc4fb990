// Package websocket pushes appointment change notifications to connected
// browsers. Clients are registered on their tenant's topic when they connect
// and only ever receive events for that tenant.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is the JSON frame delivered to live-update clients.
type Event struct {
	Event     string          `json:"event"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// TenantTopic is the topic every client of tenantID is subscribed to.
func TenantTopic(tenantID string) string {
	return "tenant:" + tenantID
}

// Client is one live-update connection.
type Client struct {
	ID       string
	TenantID string
	UserID   string
	Topics   []string
	Send     chan []byte
	hub      *Hub
}

// Hub indexes connected clients by topic. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// attach and detach maintain the topic index; callers hold h.mu.
func (h *Hub) attach(c *Client, topic string) {
	set, ok := h.clients[topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[topic] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) detach(c *Client, topic string) {
	set := h.clients[topic]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, topic)
	}
}

// Register tracks client under each of its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.hub = h
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.attach(client, topic)
	}
}

// Unregister drops client and closes its Send channel. Repeated calls are
// no-ops.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.detach(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

// Broadcast sends an event to all clients subscribed to the given topic and
// returns how many clients it was queued for. Slow clients with a full
// buffer miss the event.
func (h *Hub) Broadcast(topic string, event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.Event).Msg("failed to marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
			delivered++
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("client buffer full, event dropped")
		}
	}
	return delivered
}

// ClientCount returns how many connections are registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns how many connections listen on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
