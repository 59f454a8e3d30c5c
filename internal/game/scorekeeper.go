package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// ScoreKeeper append-only score ledger of one workspace. Scores are never
// stored, only replayed from the ledger.
type ScoreKeeper struct {
	mu        sync.RWMutex
	events    []ScoreEvent
	persister LedgerPersister
	logger    *zap.Logger
	now       func() time.Time
}

// NewScoreKeeper creates an empty ledger. Call Load to restore it.
func NewScoreKeeper(persister LedgerPersister, logger *zap.Logger) *ScoreKeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreKeeper{
		persister: persister,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the timestamp source.
func (k *ScoreKeeper) SetClock(now func() time.Time) {
	k.now = now
}

// Load replaces the in-memory ledger with the persisted one.
func (k *ScoreKeeper) Load(ctx context.Context) error {
	events, err := k.persister.LoadLedger(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrPersistenceRead, "load score ledger")
	}
	for i, ev := range events {
		if !ev.Operation.Valid() {
			return apperrors.Newf(apperrors.ErrDataIntegrity, "ledger entry %d: operation %q", i, ev.Operation)
		}
	}

	k.mu.Lock()
	k.events = append([]ScoreEvent{}, events...)
	k.mu.Unlock()

	k.logger.Info("score ledger loaded", zap.Int("entries", len(events)))
	return nil
}

// Increment records a point for user. isFirstWin is true when this is the
// user's first ever increment in the channel.
func (k *ScoreKeeper) Increment(ctx context.Context, channel, user string) (score int, isFirstWin bool, err error) {
	isFirstWin = k.isFirstWin(channel, user)
	if err := k.append(ctx, channel, user, OpIncrement); err != nil {
		return 0, false, err
	}
	return k.CurrentScore(channel, user), isFirstWin, nil
}

// Decrement records a point taken from user.
func (k *ScoreKeeper) Decrement(ctx context.Context, channel, user string) (int, error) {
	if err := k.append(ctx, channel, user, OpDecrement); err != nil {
		return 0, err
	}
	return k.CurrentScore(channel, user), nil
}

func (k *ScoreKeeper) append(ctx context.Context, channel, user string, op Operation) error {
	ev := k.event(channel, user, op)
	if err := k.persister.AppendScore(ctx, ev); err != nil {
		k.logger.Error("score persist failed",
			zap.String("channel", channel),
			zap.String("user", user),
			zap.String("operation", string(op)),
			zap.Error(err))
		return apperrors.Wrapf(err, apperrors.ErrPersistenceWrite, "append %s for %s", op, user)
	}
	k.record(ev)
	return nil
}

func (k *ScoreKeeper) event(channel, user string, op Operation) ScoreEvent {
	return ScoreEvent{
		Channel:   channel,
		User:      user,
		Operation: op,
		Timestamp: k.now().UTC().Truncate(time.Second),
	}
}

// record commits an entry that is already durable.
func (k *ScoreKeeper) record(ev ScoreEvent) {
	k.mu.Lock()
	k.events = append(k.events, ev)
	k.mu.Unlock()

	k.logger.Info("score recorded",
		zap.String("channel", ev.Channel),
		zap.String("user", ev.User),
		zap.String("operation", string(ev.Operation)))
}

func (k *ScoreKeeper) isFirstWin(channel, user string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.countLocked(channel, user, OpIncrement) == 0
}

// CurrentScore increments minus decrements for user in channel.
func (k *ScoreKeeper) CurrentScore(channel, user string) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.countLocked(channel, user, OpIncrement) - k.countLocked(channel, user, OpDecrement)
}

func (k *ScoreKeeper) countLocked(channel, user string, op Operation) int {
	n := 0
	for _, ev := range k.events {
		if ev.Channel == channel && ev.User == user && ev.Operation == op {
			n++
		}
	}
	return n
}

// Leaderboard standings for channel, highest first. Users at zero are left out.
func (k *ScoreKeeper) Leaderboard(channel string) []Standing {
	k.mu.RLock()
	scores := make(map[string]int)
	for _, ev := range k.events {
		if ev.Channel != channel {
			continue
		}
		if ev.Operation == OpIncrement {
			scores[ev.User]++
		} else {
			scores[ev.User]--
		}
	}
	k.mu.RUnlock()

	out := make([]Standing, 0, len(scores))
	for user, score := range scores {
		if score != 0 {
			out = append(out, Standing{User: user, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].User < out[j].User
	})
	return out
}

// History the newest limit entries of channel, newest first. limit <= 0
// returns everything.
func (k *ScoreKeeper) History(channel string, limit int) []ScoreEvent {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var out []ScoreEvent
	for i := len(k.events) - 1; i >= 0; i-- {
		if k.events[i].Channel != channel {
			continue
		}
		out = append(out, k.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Events returns a copy of the whole ledger in append order.
func (k *ScoreKeeper) Events() []ScoreEvent {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]ScoreEvent{}, k.events...)
}
