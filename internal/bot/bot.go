// Package bot hosts the chat workspaces: it dispatches inbound events to the
// command catalog and runs one receive loop per workspace.
package bot

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/emojirades/internal/config"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// Bot the set of workspaces served by this process.
type Bot struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	logger     *zap.Logger
}

// New creates an empty bot.
func New(logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		workspaces: make(map[string]*Workspace),
		logger:     logger,
	}
}

// Add registers a workspace.
func (b *Bot) Add(w *Workspace) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.workspaces[w.ID]; ok {
		return apperrors.Newf(apperrors.ErrInvalidParam, "duplicate workspace %s", w.ID)
	}
	b.workspaces[w.ID] = w
	return nil
}

// Workspace looks up a workspace by id.
func (b *Bot) Workspace(id string) (*Workspace, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workspaces[id]
	return w, ok
}

// Workspaces returns every workspace sorted by id.
func (b *Bot) Workspaces() []*Workspace {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Workspace, 0, len(b.workspaces))
	for _, w := range b.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Load restores every workspace's persisted state.
func (b *Bot) Load(ctx context.Context) error {
	for _, w := range b.Workspaces() {
		if err := w.Load(ctx); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrPersistenceRead, "workspace %s", w.ID)
		}
	}
	return nil
}

// Run runs every workspace until ctx is done. The first workspace to fail
// cancels the rest and its error is returned.
func (b *Bot) Run(ctx context.Context) error {
	workspaces := b.Workspaces()
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workspaces {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	b.logger.Info("bot running", zap.Int("workspaces", len(workspaces)))
	return g.Wait()
}

// ApplyConfig applies the reloadable parts of cfg, currently the admin lists.
func (b *Bot) ApplyConfig(cfg *config.Config) {
	for _, wc := range cfg.Workspaces {
		w, ok := b.Workspace(wc.ID)
		if !ok {
			b.logger.Warn("new workspace ignored until restart", zap.String("workspace", wc.ID))
			continue
		}
		w.SetAdmins(wc.Admins)
		b.logger.Info("workspace admins reloaded",
			zap.String("workspace", wc.ID),
			zap.Strings("admins", wc.Admins))
	}
}
