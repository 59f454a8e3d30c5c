package game

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// brokenStatePersister fails state writes while broken is set. Score writes
// always succeed.
type brokenStatePersister struct {
	*MemoryPersister
	broken bool
}

func (p *brokenStatePersister) SaveState(ctx context.Context, channel string, state ChannelState) error {
	if p.broken {
		return errors.New("disk full")
	}
	return p.MemoryPersister.SaveState(ctx, channel, state)
}

// brokenLedgerPersister fails score writes while broken is set.
type brokenLedgerPersister struct {
	*MemoryPersister
	broken bool
}

func (p *brokenLedgerPersister) AppendScore(ctx context.Context, ev ScoreEvent) error {
	if p.broken {
		return errors.New("disk full")
	}
	return p.MemoryPersister.AppendScore(ctx, ev)
}

// txPersister closes rounds in one write, failing it while broken is set.
type txPersister struct {
	*MemoryPersister
	broken bool
	closes int
}

func (p *txPersister) CloseRound(ctx context.Context, channel string, state ChannelState, ev ScoreEvent) error {
	if p.broken {
		return errors.New("transaction rolled back")
	}
	p.closes++
	if err := p.MemoryPersister.SaveState(ctx, channel, state); err != nil {
		return err
	}
	return p.MemoryPersister.AppendScore(ctx, ev)
}

// openRound puts C1 in guessing with U1 holding A's "Point Break".
func openRound(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)
	_, err = s.Provide(ctx, "C1", "A", []string{"Point Break"})
	require.NoError(t, err)
	_, err = s.Begin(ctx, "C1", "U1")
	require.NoError(t, err)
}

func TestAwardRoundStateFailureScoresNothing(t *testing.T) {
	ctx := context.Background()
	p := &brokenStatePersister{MemoryPersister: NewMemoryPersister()}
	s := NewStore(p, zap.NewNop())
	k := NewScoreKeeper(p, zap.NewNop())
	openRound(t, s)

	p.broken = true
	_, err := AwardRound(ctx, s, k, "C1", "U1", "U2")
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, StepGuessing, s.Get("C1").Step)
	assert.Equal(t, 0, k.CurrentScore("C1", "U2"))
	assert.Empty(t, k.Events())
	saved, err := p.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)

	p.broken = false
	res, err := AwardRound(ctx, s, k, "C1", "U1", "U2")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.True(t, res.FirstWin)

	reloaded := NewScoreKeeper(p, zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.CurrentScore("C1", "U2"))
}

func TestGuessRoundLedgerFailureClosesRoundOnce(t *testing.T) {
	ctx := context.Background()
	p := &brokenLedgerPersister{MemoryPersister: NewMemoryPersister()}
	s := NewStore(p, zap.NewNop())
	k := NewScoreKeeper(p, zap.NewNop())
	openRound(t, s)

	p.broken = true
	res, err := GuessRound(ctx, s, k, "C1", "U2")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceWrite))
	assert.Equal(t, []string{"Point Break"}, res.Before.Emojirade)
	assert.Equal(t, StepWaiting, s.Get("C1").Step)
	assert.Equal(t, 0, k.CurrentScore("C1", "U2"))

	p.broken = false
	_, err = GuessRound(ctx, s, k, "C1", "U2")
	assert.True(t, apperrors.IsRecoverable(err))
	assert.Equal(t, 0, k.CurrentScore("C1", "U2"))
}

func TestCloseRoundUsesSharedRoundPersister(t *testing.T) {
	ctx := context.Background()
	p := &txPersister{MemoryPersister: NewMemoryPersister()}
	s := NewStore(p, zap.NewNop())
	k := NewScoreKeeper(p, zap.NewNop())
	openRound(t, s)

	p.broken = true
	_, err := GuessRound(ctx, s, k, "C1", "U2")
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, StepGuessing, s.Get("C1").Step)
	assert.Empty(t, k.Events())

	p.broken = false
	res, err := GuessRound(ctx, s, k, "C1", "U2")
	require.NoError(t, err)
	assert.Equal(t, 1, p.closes)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, StepWaiting, s.Get("C1").Step)

	saved, err := p.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, k.Events(), saved)
	states, err := p.LoadStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "U2", states["C1"].Winner)
}

func TestCloseRoundSeparatePersistersWriteInTurn(t *testing.T) {
	ctx := context.Background()
	p := &txPersister{MemoryPersister: NewMemoryPersister()}
	s := NewStore(p, zap.NewNop())
	k := NewScoreKeeper(NewMemoryPersister(), zap.NewNop())
	openRound(t, s)

	res, err := AwardRound(ctx, s, k, "C1", "U1", "U2")
	require.NoError(t, err)
	assert.Zero(t, p.closes)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, "U2", s.Get("C1").Winner)
}
