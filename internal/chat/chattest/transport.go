// Package chattest provides an in-memory chat.Transport for tests.
package chattest

import (
	"context"
	"io"
	"sync"

	"github.com/wfunc/emojirades/internal/chat"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// Sent one delivered response
type Sent struct {
	Channel  string
	Response chat.Response
}

// Transport records everything sent and replays pushed payloads.
type Transport struct {
	mu          sync.Mutex
	bot         string
	names       map[string]string
	unreachable map[string]bool
	disabled    map[string]bool
	sent        []Sent
	inbox       chan []byte
	closed      bool

	// SendErr, when set, is returned by every Send.
	SendErr error
}

// New creates a transport whose bot user is botID.
func New(botID string) *Transport {
	return &Transport{
		bot:         botID,
		names:       make(map[string]string),
		unreachable: make(map[string]bool),
		disabled:    make(map[string]bool),
		inbox:       make(chan []byte, 64),
	}
}

// SetName registers a display name.
func (t *Transport) SetName(userID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[userID] = name
}

// SetUnreachable makes DMs to userID unresolvable.
func (t *Transport) SetUnreachable(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreachable[userID] = true
}

// DisableOp makes Send reject directives with op, as a platform without
// that API would.
func (t *Transport) DisableOp(op string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled[op] = true
}

// Push queues a raw payload for Receive.
func (t *Transport) Push(raw []byte) {
	t.inbox <- raw
}

// PushMessage queues a user message.
func (t *Transport) PushMessage(channel, user, text string) {
	raw, err := chat.BuildPayload(channel, user, text)
	if err != nil {
		panic(err)
	}
	t.Push(raw)
}

// Start implements chat.Transport.
func (t *Transport) Start(ctx context.Context) error { return nil }

// Receive implements chat.Transport. It returns io.EOF once closed and drained.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw, ok := <-t.inbox:
		if !ok {
			return nil, io.EOF
		}
		return raw, nil
	}
}

// Send implements chat.Transport.
func (t *Transport) Send(ctx context.Context, channel string, resp chat.Response) error {
	if t.SendErr != nil {
		return t.SendErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := resp.(chat.Directive); ok {
		known := d.Op == chat.OpPostMessage || d.Op == chat.OpAddReaction
		if !known || t.disabled[d.Op] {
			return apperrors.Newf(apperrors.ErrUnsupportedOperation, "%s", d.Op)
		}
	}
	t.sent = append(t.sent, Sent{Channel: channel, Response: resp})
	return nil
}

// ResolveDirectMessageChannel maps U to "D:U" unless marked unreachable.
func (t *Transport) ResolveDirectMessageChannel(ctx context.Context, userID string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unreachable[userID] {
		return "", false, nil
	}
	return "D:" + userID, true, nil
}

// BotID implements chat.Transport.
func (t *Transport) BotID() string { return t.bot }

// DisplayName returns the registered name or the mention.
func (t *Transport) DisplayName(ctx context.Context, userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name, ok := t.names[userID]; ok {
		return name
	}
	return chat.Mention(userID)
}

// Close stops Receive after the queued payloads are drained.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbox)
	}
	return nil
}

// Sent returns a copy of everything delivered so far.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent{}, t.sent...)
}

// Texts returns the plain text messages delivered to channel.
func (t *Transport) Texts(channel string) []string {
	var out []string
	for _, s := range t.Sent() {
		if txt, ok := s.Response.(chat.Text); ok && s.Channel == channel {
			out = append(out, string(txt))
		}
	}
	return out
}

// Reset forgets delivered responses.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}
