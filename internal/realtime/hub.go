// Package realtime delivers events to connected users over WebSockets. Delivery
// is best-effort: a slow or absent client never blocks a publisher.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is a payload pushed to every connection in a room.
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Publisher is the delivery-channel capability handed to components that emit
// events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// UserRoom is the room every connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Client is a single connection registered with the hub.
type Client struct {
	ID   string
	Room string
	Send chan []byte
}

// NewClient creates a client with a buffered outbound queue.
func NewClient(id, room string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{ID: id, Room: room, Send: make(chan []byte, buffer)}
}

// Hub tracks connections per room. All operations are safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]struct{})
	}
	h.rooms[client.Room][client] = struct{}{}
}

// Unregister removes a client and closes its Send channel. Calling it twice is
// a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, ok := members[client]; !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, client.Room)
	}
	close(client.Send)
}

// Broadcast queues data on every client in room. Clients with a full buffer
// miss the event.
func (h *Hub) Broadcast(room string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.rooms[room] {
		select {
		case client.Send <- data:
			delivered++
		default:
			h.logger.Warn().Str("room", room).Str("client_id", client.ID).Msg("realtime: client buffer full, event dropped")
		}
	}
	return delivered
}

// Publish implements Publisher by broadcasting to the event's room.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.Broadcast(event.Room, data)
	return nil
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
