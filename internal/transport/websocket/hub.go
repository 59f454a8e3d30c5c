// Package websocket is a chat transport for browser and bot clients
// connected over websockets. Every connection speaks for one user; a user
// may hold several connections.
package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Frame types
const (
	MessageTypeConnected = "connected"
	MessageTypeMessage   = "message"
	MessageTypeReaction  = "reaction"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
)

// Message one websocket frame, in either direction.
type Message struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	User      string `json:"user,omitempty"`
	Text      string `json:"text,omitempty"`
	Name      string `json:"name,omitempty"`
	TS        string `json:"ts,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub tracks the connected clients of one workspace.
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	userClients map[string][]*Client
	names       map[string]string
	userMu      sync.RWMutex

	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub creates a hub. pingInterval <= 0 disables heartbeat frames.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:      make(map[string]*Client),
		userClients:  make(map[string][]*Client),
		names:        make(map[string]string),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Run sends heartbeat frames until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-tick:
			h.Broadcast(&Message{Type: MessageTypePing})
		}
	}
}

// Register adds a client and greets it.
func (h *Hub) Register(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.userMu.Lock()
	h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
	if client.Name != "" {
		h.names[client.UserID] = client.Name
	}
	h.userMu.Unlock()

	h.logger.Info("websocket client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))

	h.SendToClient(client.ID, &Message{Type: MessageTypeConnected, User: client.UserID})
}

// Unregister removes a client and closes its send channel. Safe to call
// more than once.
func (h *Hub) Unregister(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.clientsMu.Unlock()
	if !ok {
		return
	}

	h.userMu.Lock()
	clients := h.userClients[client.UserID]
	for i, c := range clients {
		if c.ID == client.ID {
			h.userClients[client.UserID] = append(clients[:i:i], clients[i+1:]...)
			break
		}
	}
	if len(h.userClients[client.UserID]) == 0 {
		delete(h.userClients, client.UserID)
	}
	h.userMu.Unlock()

	h.logger.Info("websocket client disconnected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))
}

func (h *Hub) closeAll() {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}

func encode(message *Message) ([]byte, error) {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().Unix()
	}
	return json.Marshal(message)
}

// Broadcast sends message to every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(message *Message) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full", zap.String("client_id", client.ID))
		}
	}
	return nil
}

// SendToClient sends message to one connection.
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	select {
	case client.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendToUser sends message to every connection of userID.
func (h *Hub) SendToUser(userID string, message *Message) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	h.userMu.RLock()
	clients := append([]*Client{}, h.userClients[userID]...)
	h.userMu.RUnlock()
	if len(clients) == 0 {
		return ErrUserNotConnected
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range clients {
		if _, ok := h.clients[client.ID]; !ok {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("user send buffer full",
				zap.String("client_id", client.ID),
				zap.String("user_id", userID))
		}
	}
	return nil
}

// IsOnline reports whether userID has at least one connection.
func (h *Hub) IsOnline(userID string) bool {
	h.userMu.RLock()
	defer h.userMu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// DisplayName returns the last name a user connected with.
func (h *Hub) DisplayName(userID string) (string, bool) {
	h.userMu.RLock()
	defer h.userMu.RUnlock()
	name, ok := h.names[userID]
	return name, ok
}

// OnlineUsers returns the connected user ids, sorted.
func (h *Hub) OnlineUsers() []string {
	h.userMu.RLock()
	defer h.userMu.RUnlock()
	users := make([]string, 0, len(h.userClients))
	for u := range h.userClients {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// OnlineCount number of open connections
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
