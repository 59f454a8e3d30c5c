package twitch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

type said struct {
	channel string
	text    string
}

type fakeIRC struct {
	mu        sync.Mutex
	joined    []string
	said      []said
	onMessage func(twitch.PrivateMessage)
	stop      chan struct{}
	stopOnce  sync.Once
}

func newFakeIRC() *fakeIRC { return &fakeIRC{stop: make(chan struct{})} }

func (f *fakeIRC) OnConnect(func()) {}

func (f *fakeIRC) OnPrivateMessage(fn func(twitch.PrivateMessage)) { f.onMessage = fn }

func (f *fakeIRC) Join(channels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, channels...)
}

func (f *fakeIRC) Connect() error {
	<-f.stop
	return twitch.ErrClientDisconnected
}

func (f *fakeIRC) Disconnect() error {
	f.stopOnce.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeIRC) Say(channel, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, said{channel, text})
}

func (f *fakeIRC) Said() []said {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]said(nil), f.said...)
}

func newTestTransport(t *testing.T, dm string) (*Transport, *fakeIRC) {
	t.Helper()
	irc := newFakeIRC()
	tr := NewWithClient(config.WorkspaceConfig{
		ID:     "twitch",
		Twitch: config.TwitchConfig{Username: "EmojiBot", Channels: []string{"#Movies"}, DMChannel: dm},
	}, irc, nil)
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return tr, irc
}

func TestMentionRewriting(t *testing.T) {
	assert.Equal(t, "<@emojibot> new game <@bob>", Inbound("@EmojiBot new game @bob"))
	assert.Equal(t, "mail me at a@b.com", Inbound("mail me at a@b.com"))
	assert.Equal(t, "<@bob>++", Inbound("@bob++"))
	assert.Equal(t, "Congrats @bob, you're now at 1 point", Outbound("Congrats <@bob>, you're now at 1 point"))
}

func TestInboundMessage(t *testing.T) {
	tr, irc := newTestTransport(t, "")
	assert.Equal(t, "emojibot", tr.BotID())
	assert.Equal(t, []string{"movies"}, irc.joined)

	irc.onMessage(twitch.PrivateMessage{
		User:    twitch.User{Name: "Alice", DisplayName: "Alice_"},
		Channel: "movies",
		Message: "@emojibot new game @Bob",
		ID:      "msg-1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := tr.Receive(ctx)
	require.NoError(t, err)
	ev, err := chat.ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "movies", ev.Channel)
	assert.Equal(t, "alice", ev.User)
	assert.Equal(t, "<@emojibot> new game <@bob>", ev.Text)
	assert.Equal(t, "msg-1", ev.MessageID)

	assert.Equal(t, "Alice_", tr.DisplayName(ctx, "alice"))
	assert.Equal(t, "carol", tr.DisplayName(ctx, "carol"))
}

func TestSendAndDirectMessages(t *testing.T) {
	ctx := context.Background()

	tr, irc := newTestTransport(t, "#emojirades-dm")
	assert.Equal(t, []string{"movies", "emojirades-dm"}, irc.joined)

	channel, ok, err := tr.ResolveDirectMessageChannel(ctx, "Bob")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tr.Send(ctx, channel, chat.Text("Your emojirade is `<@bob>`")))
	require.NoError(t, tr.Send(ctx, "movies", chat.Text("Congrats <@bob>")))
	require.NoError(t, tr.Send(ctx, "movies", chat.Reaction("beers", "msg-1")))
	err = tr.Send(ctx, "movies", chat.Directive{Op: "pin"})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedOperation))

	assert.Equal(t, []said{
		{"emojirades-dm", "@bob Your emojirade is `@bob`"},
		{"movies", "Congrats @bob"},
		{"movies", ":beers:"},
	}, irc.Said())
}

func TestDirectMessagesUnresolvableWithoutChannel(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTransport(t, "")

	_, ok, err := tr.ResolveDirectMessageChannel(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	err = tr.Send(ctx, "D:bob", chat.Text("hi"))
	assert.True(t, apperrors.Is(err, apperrors.ErrDestinationUnresolved))
}

func TestCloseEndsReceive(t *testing.T) {
	tr, _ := newTestTransport(t, "")
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	err = tr.Send(context.Background(), "movies", chat.Text("late"))
	assert.True(t, apperrors.Is(err, apperrors.ErrTransportClosed))
}
