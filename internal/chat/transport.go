package chat

import "context"

// Transport is the chat platform a workspace is connected to.
type Transport interface {
	// Start connects and begins buffering inbound payloads.
	Start(ctx context.Context) error
	// Receive blocks until the next raw inbound payload or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	// Send delivers a response to a resolved channel id.
	Send(ctx context.Context, channel string, resp Response) error
	// ResolveDirectMessageChannel maps a user id to its DM channel. ok is
	// false when the user cannot be reached privately.
	ResolveDirectMessageChannel(ctx context.Context, userID string) (channel string, ok bool, err error)
	// BotID is the bot's own user id, as it appears in mentions.
	BotID() string
	// DisplayName returns a human readable name for userID.
	DisplayName(ctx context.Context, userID string) string
	Close() error
}
