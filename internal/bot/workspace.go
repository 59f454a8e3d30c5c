package bot

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/command"
	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/game"
)

// Persister stores both the channel states and the score ledger of one
// workspace.
type Persister interface {
	game.StatePersister
	game.LedgerPersister
}

// Workspace one chat workspace: its game state, ledger, transport and admins.
type Workspace struct {
	ID string

	store      *game.Store
	ledger     *game.ScoreKeeper
	transport  chat.Transport
	env        *command.Env
	dispatcher *Dispatcher
	admins     atomic.Pointer[map[string]struct{}]
	logger     *zap.Logger
}

// NewWorkspace wires a workspace. Call Load before Run.
func NewWorkspace(cfg config.WorkspaceConfig, transport chat.Transport, persister Persister, catalog *command.Catalog, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("workspace", cfg.ID))

	w := &Workspace{
		ID:        cfg.ID,
		store:     game.NewStore(persister, logger.Named("state")),
		ledger:    game.NewScoreKeeper(persister, logger.Named("scores")),
		transport: transport,
		logger:    logger,
	}
	w.SetAdmins(cfg.Admins)

	w.env = &command.Env{
		Store:     w.store,
		Ledger:    w.ledger,
		Transport: transport,
		IsAdmin:   w.IsAdmin,
		Logger:    logger.Named("command"),
	}
	w.dispatcher = NewDispatcher(catalog, w.env, logger.Named("dispatch"))
	return w
}

// SetAdmins replaces the admin set. Safe to call while Run is active.
func (w *Workspace) SetAdmins(admins []string) {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		set[a] = struct{}{}
	}
	w.admins.Store(&set)
}

// IsAdmin reports whether user may run admin commands.
func (w *Workspace) IsAdmin(user string) bool {
	set := w.admins.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[user]
	return ok
}

// Store the workspace's game state
func (w *Workspace) Store() *game.Store { return w.store }

// Ledger the workspace's score ledger
func (w *Workspace) Ledger() *game.ScoreKeeper { return w.ledger }

// Transport the workspace's chat transport
func (w *Workspace) Transport() chat.Transport { return w.transport }

// Env the command environment
func (w *Workspace) Env() *command.Env { return w.env }

// Load restores the persisted channel states and ledger.
func (w *Workspace) Load(ctx context.Context) error {
	if err := w.store.Load(ctx); err != nil {
		return err
	}
	return w.ledger.Load(ctx)
}

// Handle dispatches one raw payload.
func (w *Workspace) Handle(ctx context.Context, raw []byte) error {
	return w.dispatcher.Handle(ctx, raw)
}

// Run starts the transport and processes events in order until ctx is done,
// the transport closes, or an event fails fatally.
func (w *Workspace) Run(ctx context.Context) error {
	if err := w.transport.Start(ctx); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrTransportConnect, "workspace %s", w.ID)
	}
	defer w.transport.Close()

	w.logger.Info("workspace running", zap.String("bot_id", w.transport.BotID()))
	for {
		raw, err := w.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				w.logger.Info("workspace stopped")
				return nil
			}
			return apperrors.Wrapf(err, apperrors.ErrTransportClosed, "workspace %s", w.ID)
		}

		if err := w.dispatcher.Handle(ctx, raw); err != nil {
			if apperrors.IsFatal(err) {
				w.logger.Error("fatal event failure", zap.Error(err))
				return err
			}
			w.logger.Warn("event failed", zap.Error(err))
		}
	}
}
