package chat

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// Event is an immutable view over one inbound chat payload.
//
// Payloads are JSON objects carrying at least channel, user (or bot_id) and
// text. A payload wrapped in a {"data": {...}} envelope is unwrapped first.
type Event struct {
	Channel   string
	User      string
	BotID     string
	Text      string
	MessageID string

	hasText bool
	raw     gjson.Result
}

// ParseEvent extracts the canonical fields from raw. Only malformed JSON is an
// error; missing fields surface through Valid.
func ParseEvent(raw []byte) (*Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, apperrors.New(apperrors.ErrInvalidEvent, "payload is not valid JSON")
	}

	root := gjson.ParseBytes(raw)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	if !root.IsObject() {
		return nil, apperrors.New(apperrors.ErrInvalidEvent, "payload is not an object")
	}

	text := root.Get("text")
	return &Event{
		Channel:   root.Get("channel").String(),
		User:      root.Get("user").String(),
		BotID:     root.Get("bot_id").String(),
		Text:      text.String(),
		MessageID: root.Get("ts").String(),
		hasText:   text.Exists(),
		raw:       root,
	}, nil
}

// PlayerID is bot_id for bot-originated messages and user otherwise.
func (e *Event) PlayerID() (string, error) {
	if e.BotID != "" {
		return e.BotID, nil
	}
	if e.User != "" {
		return e.User, nil
	}
	return "", apperrors.New(apperrors.ErrInvalidEvent, "event has neither user nor bot_id")
}

// Valid reports whether the event carries a channel, an identifiable sender
// and a text field. Empty text is still valid.
func (e *Event) Valid() bool {
	if e == nil || e.Channel == "" || !e.hasText {
		return false
	}
	_, err := e.PlayerID()
	return err == nil
}

// IsBot reports a bot-originated message.
func (e *Event) IsBot() bool {
	return e.BotID != ""
}

// Get returns an arbitrary field of the payload, for transport specific data.
func (e *Event) Get(path string) gjson.Result {
	return e.raw.Get(path)
}

// Raw returns the payload JSON the event was parsed from.
func (e *Event) Raw() string {
	return e.raw.Raw
}

// BuildPayload assembles the canonical payload transports hand to Receive.
// Empty optional fields are omitted.
func BuildPayload(channel, user, text string, opts ...PayloadOption) ([]byte, error) {
	out := []byte(`{}`)
	var err error
	if out, err = sjson.SetBytes(out, "channel", channel); err != nil {
		return nil, err
	}
	if user != "" {
		if out, err = sjson.SetBytes(out, "user", user); err != nil {
			return nil, err
		}
	}
	if out, err = sjson.SetBytes(out, "text", text); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if out, err = opt(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PayloadOption sets an extra payload field.
type PayloadOption func([]byte) ([]byte, error)

// WithBotID marks the payload as bot-originated.
func WithBotID(botID string) PayloadOption {
	return WithField("bot_id", botID)
}

// WithMessageID sets the transport message id.
func WithMessageID(id string) PayloadOption {
	return WithField("ts", id)
}

// WithField sets an arbitrary field when value is non-empty.
func WithField(path, value string) PayloadOption {
	return func(b []byte) ([]byte, error) {
		if value == "" {
			return b, nil
		}
		return sjson.SetBytes(b, path, value)
	}
}
