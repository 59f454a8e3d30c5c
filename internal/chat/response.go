package chat

import (
	"fmt"
	"regexp"
)

// Transport operations a Directive may name.
const (
	OpPostMessage = "post_message"
	OpAddReaction = "add_reaction"
)

// Response is either Text or a Directive.
type Response interface {
	isResponse()
}

// Text is a plain message.
type Text string

func (Text) isResponse() {}

// Directive names a transport operation with its arguments. A "channel"
// kwarg left unset is filled with the resolved destination.
type Directive struct {
	Op     string
	Args   []any
	Kwargs map[string]any
}

func (Directive) isResponse() {}

// String returns the kwarg as a string, or "".
func (d Directive) String(key string) string {
	if d.Kwargs == nil {
		return ""
	}
	if s, ok := d.Kwargs[key].(string); ok {
		return s
	}
	return ""
}

// Reaction builds an add_reaction directive for a message.
func Reaction(name, messageID string) Directive {
	return Directive{
		Op:     OpAddReaction,
		Kwargs: map[string]any{"name": name, "timestamp": messageID},
	}
}

// DestinationKind where a reply goes
type DestinationKind int

const (
	// DestHere is the channel the triggering event came from.
	DestHere DestinationKind = iota
	// DestChannel is an explicit channel id.
	DestChannel
	// DestUser is a direct message to a user, resolved by the transport.
	DestUser
)

// Destination reply target
type Destination struct {
	Kind DestinationKind
	ID   string
}

// Here targets the originating channel.
func Here() Destination { return Destination{Kind: DestHere} }

// ToChannel targets an explicit channel.
func ToChannel(id string) Destination { return Destination{Kind: DestChannel, ID: id} }

// ToUser targets a direct message with a user.
func ToUser(id string) Destination { return Destination{Kind: DestUser, ID: id} }

func (d Destination) String() string {
	switch d.Kind {
	case DestChannel:
		return "channel:" + d.ID
	case DestUser:
		return "user:" + d.ID
	default:
		return "here"
	}
}

// Reply is one (destination, response) pair yielded by a command.
type Reply struct {
	To       Destination
	Response Response
}

// Say replies with text in the originating channel.
func Say(format string, args ...any) Reply {
	return Reply{To: Here(), Response: Text(sprintf(format, args...))}
}

// SayTo replies with text at dest.
func SayTo(dest Destination, format string, args ...any) Reply {
	return Reply{To: dest, Response: Text(sprintf(format, args...))}
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Mention renders a user mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

var mentionRe = regexp.MustCompile(`<@([\w.\-]+)>`)

// Mentions returns the user ids mentioned in text, in order.
func Mentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// ReplaceMentions rewrites every mention with fn(userID).
func ReplaceMentions(text string, fn func(userID string) string) string {
	return mentionRe.ReplaceAllStringFunc(text, func(m string) string {
		return fn(mentionRe.FindStringSubmatch(m)[1])
	})
}
