// Package websocket carries server-pushed events to connected users and
// provides the connection plumbing shared with the signaling relay.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
)

// Event is a server-pushed notification.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// UserTopic is the topic every connection of a user is subscribed to.
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Hub tracks connected clients by topic. All operations are safe for
// concurrent use.
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
		logger:  logger,
	}
}

// Register adds a client and subscribes it to its topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client from every topic and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
	delete(h.all, client)
	client.Close()
}

// Broadcast sends an event to every client subscribed to topic and returns
// how many clients accepted it.
func (h *Hub) Broadcast(topic string, event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[topic] {
		if client.Enqueue(data) {
			delivered++
		} else {
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("dropping event for slow client")
		}
	}
	return delivered
}

// Notify pushes an event to all open connections of a user. A user with no
// open connection is not an error; the event is simply not delivered.
func (h *Hub) Notify(_ context.Context, userID uuid.UUID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	n := h.Broadcast(UserTopic(userID), Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	h.logger.Debug().Str("user_id", userID.String()).Str("event", eventType).Int("delivered", n).Msg("notification pushed")
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Handler upgrades authenticated requests into notification connections.
type Handler struct {
	hub      *Hub
	upgrader *gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(hub *Hub, upgrader *gorillawebsocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, upgrader: upgrader, logger: logger}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/notifications", wsh.HandleConnect, auth.RequireSession())
}

type clientMessage struct {
	Action string `json:"action"`
}

// HandleConnect subscribes the caller to their own user topic only.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	id, _ := auth.IdentityFromContext(c.Request().Context())

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(id.UserID, id.Role, UserTopic(id.UserID))
	wsh.hub.Register(client)

	go func() {
		defer wsh.hub.Unregister(client)
		Serve(ws, client, wsh.logger, func(raw []byte) {
			var msg clientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return
			}
			if msg.Action == "ping" {
				pong, _ := json.Marshal(Event{Type: "pong", Timestamp: time.Now().UTC()})
				client.Enqueue(pong)
			}
		})
	}()
	return nil
}
