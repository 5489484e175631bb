// Package websocket pushes clinician feed events to connected dashboards.
// A client that follows no patient receives the global feed. Following one
// or more patients narrows delivery to those patients until the last one is
// unfollowed.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// FeedTopic carries every event. Clients sit on it while they follow no
// patient.
const FeedTopic = "notifications"

const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
)

// PatientTopic is the topic carrying events for a single patient.
func PatientTopic(patientID string) string {
	return "patient/" + patientID
}

// Event is one message sent to feed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	PatientID string          `json:"patientId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an event addressed to the patient topic.
func NewEvent(eventType, patientID string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Topic:     PatientTopic(patientID),
		PatientID: patientID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// ClientMessage is an inbound follow/unfollow request.
type ClientMessage struct {
	Action   string   `json:"action"`
	Patients []string `json:"patients"`
}

// Publisher delivers feed events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks connected clients by topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds the client with the topics it already lists. A client
// listing no patient topic is placed on the feed.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	topics := client.Topics
	client.Topics = nil
	for _, topic := range topics {
		if topic == FeedTopic || contains(client.Topics, topic) {
			continue
		}
		h.join(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	h.placeOnFeed(client)
}

// Unregister drops the client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.leave(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Follow subscribes the client to the given patients' topics.
func (h *Hub) Follow(client *Client, patientIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range patientIDs {
		topic := PatientTopic(id)
		if contains(client.Topics, topic) {
			continue
		}
		h.join(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	h.placeOnFeed(client)
}

// Unfollow removes patient topics from the client. Dropping the last one
// puts the client back on the feed.
func (h *Hub) Unfollow(client *Client, patientIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(patientIDs))
	for _, id := range patientIDs {
		topic := PatientTopic(id)
		drop[topic] = struct{}{}
		h.leave(topic, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
	h.placeOnFeed(client)
}

// placeOnFeed keeps the client on the feed topic exactly when it follows no
// patient. Callers hold h.mu.
func (h *Hub) placeOnFeed(client *Client) {
	following := false
	for _, t := range client.Topics {
		if t != FeedTopic {
			following = true
			break
		}
	}

	onFeed := contains(client.Topics, FeedTopic)
	switch {
	case following && onFeed:
		h.leave(FeedTopic, client)
		kept := client.Topics[:0]
		for _, t := range client.Topics {
			if t != FeedTopic {
				kept = append(kept, t)
			}
		}
		client.Topics = kept
	case !following && !onFeed:
		h.join(FeedTopic, client)
		client.Topics = append(client.Topics, FeedTopic)
	}
}

func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "follow":
		h.Follow(client, msg.Patients)
	case "unfollow":
		h.Unfollow(client, msg.Patients)
	}
}

func (h *Hub) join(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) leave(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Publish sends the event to feed clients and to clients following the
// event's topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, topic := range []string{FeedTopic, event.Topic} {
		for client := range h.clients[topic] {
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				log.Warn().Str("client", client.ID).Str("event", event.Type).Msg("websocket client buffer full, dropping event")
			}
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Handler upgrades HTTP requests to feed connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler builds a handler that accepts connections from the given
// origins. An empty list or "*" accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (wh *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications/ws", wh.HandleConnect)
}

func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := wh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}
	for _, id := range c.QueryParams()["patient_id"] {
		client.Topics = append(client.Topics, PatientTopic(id))
	}
	wh.hub.Register(client)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)
	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
