package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/command"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// MsgAdminOnly is sent when a non-admin runs an admin command.
const MsgAdminOnly = "Sorry %s, only admins can do that"

// candidate one command scheduled for an event
type candidate struct {
	def  command.Definition
	args map[string]string
}

// Dispatcher routes normalized events to commands and their replies to the
// transport.
type Dispatcher struct {
	catalog *command.Catalog
	env     *command.Env
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher over env.
func NewDispatcher(catalog *command.Catalog, env *command.Env, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{catalog: catalog, env: env, logger: logger}
}

// Handle processes one raw payload. Invalid payloads and guard rejections are
// handled here. A returned error aborts the event; apperrors.IsFatal tells
// whether the workspace must stop.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) error {
	ev, err := chat.ParseEvent(raw)
	if err != nil {
		d.logger.Debug("dropping payload", zap.Error(err))
		return nil
	}
	if !ev.Valid() {
		d.logger.Debug("dropping invalid event", zap.String("payload", ev.Raw()))
		return nil
	}
	player, _ := ev.PlayerID()

	botID := d.env.Transport.BotID()
	if player == botID {
		return nil
	}

	for _, c := range d.candidates(ev, botID) {
		inv := &command.Invocation{Event: ev, Player: player, Args: c.args, Env: d.env}
		if err := d.execute(ctx, c.def, inv); err != nil {
			return err
		}
	}
	return nil
}

// candidates inferred commands first, then the first pattern match.
func (d *Dispatcher) candidates(ev *chat.Event, botID string) []candidate {
	var out []candidate
	for _, inf := range d.env.Store.Infer(ev, botID) {
		if def, ok := d.catalog.Inferred(inf); ok {
			out = append(out, candidate{def: def})
		}
	}
	if def, args, ok := d.catalog.Match(ev.Text, botID); ok {
		out = append(out, candidate{def: def, args: args})
	}
	return out
}

func (d *Dispatcher) execute(ctx context.Context, def command.Definition, inv *command.Invocation) error {
	log := d.logger.With(
		zap.String("command", def.Name),
		zap.String("channel", inv.Event.Channel),
		zap.String("player", inv.Player))
	log.Info("command matched")

	if def.AdminOnly && (d.env.IsAdmin == nil || !d.env.IsAdmin(inv.Player)) {
		log.Info("admin command refused")
		return d.deliver(ctx, inv.Event, chat.Say(MsgAdminOnly, chat.Mention(inv.Player)))
	}

	for reply, err := range def.Run(ctx, inv) {
		if err != nil {
			if apperrors.IsRecoverable(err) {
				log.Warn("command rejected", zap.Error(err))
				return nil
			}
			log.Error("command failed", zap.Error(err))
			return err
		}
		if err := d.deliver(ctx, inv.Event, reply); err != nil {
			log.Error("reply failed", zap.Stringer("to", reply.To), zap.Error(err))
			return err
		}
	}
	return nil
}

// deliver resolves the reply's destination and sends it.
func (d *Dispatcher) deliver(ctx context.Context, ev *chat.Event, reply chat.Reply) error {
	channel, err := d.resolve(ctx, ev, reply.To)
	if err != nil {
		return err
	}

	resp := reply.Response
	if dir, ok := resp.(chat.Directive); ok && dir.String("channel") == "" {
		kwargs := make(map[string]any, len(dir.Kwargs)+1)
		for k, v := range dir.Kwargs {
			kwargs[k] = v
		}
		kwargs["channel"] = channel
		dir.Kwargs = kwargs
		resp = dir
	}

	d.logger.Debug("sending reply", zap.String("channel", channel), zap.Stringer("to", reply.To))
	if err := d.env.Transport.Send(ctx, channel, resp); err != nil {
		if apperrors.GetCode(err) != apperrors.ErrUnknown {
			return err
		}
		return apperrors.Wrapf(err, apperrors.ErrTransportSend, "send to %s", channel)
	}
	return nil
}

func (d *Dispatcher) resolve(ctx context.Context, ev *chat.Event, to chat.Destination) (string, error) {
	switch to.Kind {
	case chat.DestHere:
		return ev.Channel, nil
	case chat.DestChannel:
		return to.ID, nil
	case chat.DestUser:
		channel, ok, err := d.env.Transport.ResolveDirectMessageChannel(ctx, to.ID)
		if err != nil {
			return "", apperrors.Wrapf(err, apperrors.ErrDestinationUnresolved, "user %s", to.ID)
		}
		if !ok || channel == "" {
			return "", apperrors.Newf(apperrors.ErrDestinationUnresolved, "no direct message channel for %s", to.ID)
		}
		return channel, nil
	default:
		return "", apperrors.Newf(apperrors.ErrDestinationUnresolved, "destination %s", to)
	}
}
