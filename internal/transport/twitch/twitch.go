// Package twitch is a chat transport for Twitch IRC chat. Users are
// identified by their lowercase login and channels by their name without
// the leading '#'.
package twitch

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// directPrefix marks channels resolved for a single user.
const directPrefix = "D:"

const inboxSize = 256

var atMention = regexp.MustCompile(`(^|[^\w@<])@(\w+)`)

// IRC the subset of *twitch.Client the transport drives
type IRC interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
	Say(channel, text string)
}

// Transport implements chat.Transport over Twitch IRC.
type Transport struct {
	client    IRC
	botID     string
	channels  []string
	dmChannel string
	logger    *zap.Logger

	inbox chan []byte
	done  chan struct{}

	mu        sync.RWMutex
	names     map[string]string
	err       error
	startOnce sync.Once
	closeOnce sync.Once
}

// New connects as cfg.Twitch.Username.
func New(cfg config.WorkspaceConfig, logger *zap.Logger) *Transport {
	client := twitch.NewClient(cfg.Twitch.Username, cfg.Twitch.OAuth)
	return NewWithClient(cfg, client, logger)
}

// NewWithClient uses an existing IRC client.
func NewWithClient(cfg config.WorkspaceConfig, client IRC, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	botID := cfg.BotID
	if botID == "" {
		botID = cfg.Twitch.Username
	}
	channels := make([]string, 0, len(cfg.Twitch.Channels)+1)
	for _, c := range cfg.Twitch.Channels {
		channels = append(channels, normalizeChannel(c))
	}
	dm := normalizeChannel(cfg.Twitch.DMChannel)
	if dm != "" && !contains(channels, dm) {
		channels = append(channels, dm)
	}

	return &Transport{
		client:    client,
		botID:     strings.ToLower(botID),
		channels:  channels,
		dmChannel: dm,
		logger:    logger,
		inbox:     make(chan []byte, inboxSize),
		done:      make(chan struct{}),
		names:     make(map[string]string),
	}
}

func normalizeChannel(c string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Start joins the configured channels and connects in the background.
func (t *Transport) Start(ctx context.Context) error {
	t.startOnce.Do(func() {
		t.client.OnConnect(func() {
			t.logger.Info("connected to twitch", zap.Strings("channels", t.channels))
		})
		t.client.OnPrivateMessage(t.onMessage)
		t.client.Join(t.channels...)

		go func() {
			err := t.client.Connect()
			select {
			case <-t.done:
				return
			default:
			}
			if err == nil || errors.Is(err, twitch.ErrClientDisconnected) {
				err = io.EOF
			}
			t.fail(err)
		}()
	})
	return nil
}

func (t *Transport) onMessage(msg twitch.PrivateMessage) {
	login := strings.ToLower(msg.User.Name)
	if msg.User.DisplayName != "" {
		t.mu.Lock()
		t.names[login] = msg.User.DisplayName
		t.mu.Unlock()
	}

	raw, err := chat.BuildPayload(normalizeChannel(msg.Channel), login, Inbound(msg.Message),
		chat.WithMessageID(msg.ID))
	if err != nil {
		t.logger.Warn("dropping message", zap.String("id", msg.ID), zap.Error(err))
		return
	}

	select {
	case t.inbox <- raw:
	case <-t.done:
	}
}

func (t *Transport) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.Close()
}

// Receive implements chat.Transport.
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
		}
		t.mu.RLock()
		err := t.err
		t.mu.RUnlock()
		if err == nil || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTransportConnect, "twitch")
	}
}

// Send implements chat.Transport. Reactions have no IRC equivalent and are
// posted as the emoji itself.
func (t *Transport) Send(ctx context.Context, channel string, resp chat.Response) error {
	var text string
	switch r := resp.(type) {
	case chat.Text:
		text = string(r)
	case chat.Directive:
		if c := r.String("channel"); c != "" {
			channel = c
		}
		switch r.Op {
		case chat.OpPostMessage:
			text = r.String("text")
		case chat.OpAddReaction:
			text = ":" + strings.Trim(r.String("name"), ":") + ":"
		default:
			return apperrors.Newf(apperrors.ErrUnsupportedOperation, "twitch: %s", r.Op)
		}
	default:
		return apperrors.Newf(apperrors.ErrMessageFormat, "twitch: %T", resp)
	}

	select {
	case <-t.done:
		return apperrors.New(apperrors.ErrTransportClosed, "twitch")
	default:
	}

	target, text := t.route(channel, Outbound(text))
	if target == "" {
		return apperrors.Newf(apperrors.ErrDestinationUnresolved, "twitch channel %q", channel)
	}
	t.client.Say(target, text)
	return nil
}

// route maps a resolved channel to an IRC channel, addressing DMs by name.
func (t *Transport) route(channel, text string) (string, string) {
	if user, ok := strings.CutPrefix(channel, directPrefix); ok {
		if t.dmChannel == "" {
			return "", text
		}
		return t.dmChannel, "@" + user + " " + text
	}
	return normalizeChannel(channel), text
}

// ResolveDirectMessageChannel implements chat.Transport. Without a
// dm_channel no user is reachable privately.
func (t *Transport) ResolveDirectMessageChannel(ctx context.Context, userID string) (string, bool, error) {
	if t.dmChannel == "" || userID == "" {
		return "", false, nil
	}
	return directPrefix + strings.ToLower(userID), true, nil
}

// BotID implements chat.Transport.
func (t *Transport) BotID() string { return t.botID }

// DisplayName implements chat.Transport.
func (t *Transport) DisplayName(ctx context.Context, userID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.names[strings.ToLower(userID)]; ok {
		return name
	}
	return userID
}

// Close implements chat.Transport.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.client.Disconnect()
		if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			err = nil
		}
	})
	return err
}

// Inbound rewrites "@name" to the "<@name>" mention form.
func Inbound(text string) string {
	return atMention.ReplaceAllStringFunc(text, func(m string) string {
		sub := atMention.FindStringSubmatch(m)
		return sub[1] + chat.Mention(strings.ToLower(sub[2]))
	})
}

// Outbound rewrites "<@name>" mentions to "@name".
func Outbound(text string) string {
	return chat.ReplaceMentions(text, func(userID string) string {
		return "@" + userID
	})
}
