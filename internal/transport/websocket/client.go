package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
)

var (
	ErrClientNotFound   = errors.New("client not found")
	ErrUserNotConnected = errors.New("user not connected")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidMessage   = errors.New("invalid message")
)

// Connection defaults, overridden by config.WebSocketConfig
const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
	sendBufferSize        = 256
)

// Client one websocket connection.
type Client struct {
	ID     string
	UserID string
	Name   string

	transport *Transport
	conn      *websocket.Conn
	send      chan []byte
}

func newClient(t *Transport, conn *websocket.Conn, userID, name string) *Client {
	return &Client{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		transport: t,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
}

// DirectChannel the DM channel id of a user
func DirectChannel(userID string) string {
	return "D:" + userID
}

// ReadPump reads frames until the connection fails.
func (c *Client) ReadPump() {
	hub := c.transport.hub
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
	}()

	pongWait := c.transport.pongWait()
	c.conn.SetReadLimit(c.transport.maxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.transport.logger.Warn("websocket read failed",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}

		if err := c.handleMessage(data); err != nil {
			c.sendError(err.Error())
			if errors.Is(err, ErrInvalidMessage) {
				return
			}
		}
	}
}

// WritePump drains the send channel and keeps the connection alive.
func (c *Client) WritePump() {
	writeWait := c.transport.writeWait()
	ticker := time.NewTicker(c.transport.pongWait() * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		return ErrInvalidMessage
	}

	switch msg.Type {
	case MessageTypePong:
		return nil
	case MessageTypeMessage:
		return c.post(msg)
	default:
		return errors.New("unsupported message type: " + msg.Type)
	}
}

// post turns a chat frame into an inbound event payload.
func (c *Client) post(msg Message) error {
	if msg.Channel == "" || strings.TrimSpace(msg.Text) == "" {
		return errors.New("channel and text are required")
	}
	if strings.HasPrefix(msg.Channel, "D:") && msg.Channel != DirectChannel(c.UserID) {
		return errors.New("cannot post to another user's direct channel")
	}

	ts := uuid.New().String()
	raw, err := chat.BuildPayload(msg.Channel, c.UserID, msg.Text, chat.WithMessageID(ts))
	if err != nil {
		return err
	}
	if err := c.transport.push(raw); err != nil {
		return err
	}

	// Echo so every participant sees the message and can refer to its ts.
	c.transport.deliver(msg.Channel, &Message{
		Type:    MessageTypeMessage,
		Channel: msg.Channel,
		User:    c.UserID,
		Text:    msg.Text,
		TS:      ts,
	})
	return nil
}

func (c *Client) sendError(message string) {
	c.transport.hub.SendToClient(c.ID, &Message{Type: MessageTypeError, Error: message})
}
