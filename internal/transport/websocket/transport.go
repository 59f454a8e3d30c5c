package websocket

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

const defaultInboxSize = 256

// Transport a chat.Transport whose users connect over websockets. Channel
// messages go to every connection; "D:<user>" channels only to that user.
type Transport struct {
	cfg     config.WebSocketConfig
	botID   string
	botName string
	hub     *Hub
	inbox   chan []byte
	done    chan struct{}
	logger  *zap.Logger

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	mu        sync.Mutex
}

// New creates a transport for one workspace.
func New(cfg config.WebSocketConfig, botID, botName string, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Transport{
		cfg:     cfg,
		botID:   botID,
		botName: botName,
		hub:     NewHub(cfg.PingInterval, logger),
		inbox:   make(chan []byte, size),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Hub the connected clients
func (t *Transport) Hub() *Hub { return t.hub }

// Start implements chat.Transport.
func (t *Transport) Start(ctx context.Context) error {
	t.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		t.mu.Lock()
		t.cancel = cancel
		t.mu.Unlock()
		go t.hub.Run(runCtx)
	})
	return nil
}

// Receive implements chat.Transport. Payloads queued before Close are still
// returned; after that Receive returns io.EOF.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-t.inbox:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		select {
		case raw := <-t.inbox:
			return raw, nil
		default:
			return nil, io.EOF
		}
	}
}

func (t *Transport) push(raw []byte) error {
	select {
	case <-t.done:
		return apperrors.New(apperrors.ErrTransportClosed)
	default:
	}
	select {
	case t.inbox <- raw:
		return nil
	case <-t.done:
		return apperrors.New(apperrors.ErrTransportClosed)
	}
}

// Send implements chat.Transport.
func (t *Transport) Send(ctx context.Context, channel string, resp chat.Response) error {
	msg, err := t.frame(channel, resp)
	if err != nil {
		return err
	}
	return t.deliver(msg.Channel, msg)
}

func (t *Transport) frame(channel string, resp chat.Response) (*Message, error) {
	switch r := resp.(type) {
	case chat.Text:
		return t.text(channel, string(r)), nil
	case chat.Directive:
		if c := r.String("channel"); c != "" {
			channel = c
		}
		switch r.Op {
		case chat.OpPostMessage:
			return t.text(channel, r.String("text")), nil
		case chat.OpAddReaction:
			return &Message{
				Type:    MessageTypeReaction,
				Channel: channel,
				User:    t.botID,
				Name:    strings.Trim(r.String("name"), ":"),
				TS:      r.String("timestamp"),
			}, nil
		}
		return nil, apperrors.Newf(apperrors.ErrUnsupportedOperation, "websocket: %s", r.Op)
	default:
		return nil, apperrors.Newf(apperrors.ErrMessageFormat, "websocket: %T", resp)
	}
}

func (t *Transport) text(channel, text string) *Message {
	return &Message{
		Type:    MessageTypeMessage,
		Channel: channel,
		User:    t.botID,
		Text:    text,
		TS:      uuid.New().String(),
	}
}

// deliver routes a frame by channel.
func (t *Transport) deliver(channel string, msg *Message) error {
	if user, ok := strings.CutPrefix(channel, "D:"); ok {
		if err := t.hub.SendToUser(user, msg); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrTransportSend, "direct message to %s", user)
		}
		return nil
	}
	if err := t.hub.Broadcast(msg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTransportSend, channel)
	}
	return nil
}

// ResolveDirectMessageChannel implements chat.Transport. Only connected
// users are reachable.
func (t *Transport) ResolveDirectMessageChannel(ctx context.Context, userID string) (string, bool, error) {
	if !t.hub.IsOnline(userID) {
		return "", false, nil
	}
	return DirectChannel(userID), true, nil
}

// BotID implements chat.Transport.
func (t *Transport) BotID() string { return t.botID }

// DisplayName implements chat.Transport.
func (t *Transport) DisplayName(ctx context.Context, userID string) string {
	if userID == t.botID && t.botName != "" {
		return t.botName
	}
	if name, ok := t.hub.DisplayName(userID); ok {
		return name
	}
	return chat.Mention(userID)
}

// Close implements chat.Transport.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		} else {
			t.hub.closeAll()
		}
	})
	return nil
}

func (t *Transport) pongWait() time.Duration {
	if t.cfg.PongTimeout > 0 {
		return t.cfg.PongTimeout
	}
	return defaultPongWait
}

func (t *Transport) writeWait() time.Duration {
	if t.cfg.WriteTimeout > 0 {
		return t.cfg.WriteTimeout
	}
	return defaultWriteWait
}

func (t *Transport) maxMessageSize() int64 {
	if t.cfg.MaxMessageSize > 0 {
		return t.cfg.MaxMessageSize
	}
	return defaultMaxMessageSize
}

// Serve attaches an upgraded connection for userID and starts its pumps.
func (t *Transport) Serve(conn *websocket.Conn, userID, name string) *Client {
	client := newClient(t, conn, userID, name)
	t.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
	return client
}
