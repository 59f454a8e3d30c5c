package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

func replayScore(events []ScoreEvent, channel, user string) int {
	score := 0
	for _, ev := range events {
		if ev.Channel != channel || ev.User != user {
			continue
		}
		switch ev.Operation {
		case OpIncrement:
			score++
		case OpDecrement:
			score--
		}
	}
	return score
}

func TestScoreKeeperIncrementDecrement(t *testing.T) {
	ctx := context.Background()
	k := NewScoreKeeper(NewMemoryPersister(), zap.NewNop())

	assert.Equal(t, 0, k.CurrentScore("C1", "U1"))

	score, first, err := k.Increment(ctx, "C1", "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, score)
	assert.True(t, first)

	score, first, err = k.Increment(ctx, "C1", "U1")
	require.NoError(t, err)
	assert.Equal(t, 2, score)
	assert.False(t, first)

	score, err = k.Decrement(ctx, "C1", "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, score)

	// first win is per channel
	_, first, err = k.Increment(ctx, "C2", "U1")
	require.NoError(t, err)
	assert.True(t, first)

	// a decrement does not count as a win
	_, err = k.Decrement(ctx, "C1", "U9")
	require.NoError(t, err)
	_, first, err = k.Increment(ctx, "C1", "U9")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 0, k.CurrentScore("C1", "U9"))
}

func TestScoreKeeperReplayAcrossReloads(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	ops := []struct {
		channel, user string
		op            Operation
	}{
		{"C1", "U1", OpIncrement},
		{"C1", "U2", OpIncrement},
		{"C1", "U1", OpDecrement},
		{"C2", "U1", OpIncrement},
		{"C1", "U1", OpIncrement},
		{"C1", "U1", OpIncrement},
	}

	for i, o := range ops {
		// reload from durable storage before every operation
		k := NewScoreKeeper(p, zap.NewNop())
		require.NoError(t, k.Load(ctx))
		if o.op == OpIncrement {
			_, _, err := k.Increment(ctx, o.channel, o.user)
			require.NoError(t, err)
		} else {
			_, err := k.Decrement(ctx, o.channel, o.user)
			require.NoError(t, err)
		}

		events := k.Events()
		require.Len(t, events, i+1)
		for _, ch := range []string{"C1", "C2"} {
			for _, u := range []string{"U1", "U2"} {
				assert.Equal(t, replayScore(events, ch, u), k.CurrentScore(ch, u))
			}
		}
	}

	k := NewScoreKeeper(p, zap.NewNop())
	require.NoError(t, k.Load(ctx))
	assert.Equal(t, 2, k.CurrentScore("C1", "U1"))
	assert.Equal(t, 1, k.CurrentScore("C2", "U1"))
}

func TestScoreKeeperLeaderboardHistory(t *testing.T) {
	ctx := context.Background()
	k := NewScoreKeeper(NewMemoryPersister(), zap.NewNop())
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	k.SetClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})

	for _, u := range []string{"U2", "U1", "U3", "U3", "U4"} {
		_, _, err := k.Increment(ctx, "C1", u)
		require.NoError(t, err)
	}
	_, err := k.Decrement(ctx, "C1", "U4")
	require.NoError(t, err)
	_, _, err = k.Increment(ctx, "C2", "U1")
	require.NoError(t, err)

	assert.Equal(t, []Standing{
		{User: "U3", Score: 2},
		{User: "U1", Score: 1},
		{User: "U2", Score: 1},
	}, k.Leaderboard("C1"))

	history := k.History("C1", 2)
	require.Len(t, history, 2)
	assert.Equal(t, OpDecrement, history[0].Operation)
	assert.Equal(t, "U4", history[1].User)
	assert.True(t, history[0].Timestamp.After(history[1].Timestamp))
	assert.Len(t, k.History("C1", 0), 6)
	assert.Empty(t, k.History("C9", 5))
}

func TestScoreKeeperPersistFailure(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{MemoryPersister: NewMemoryPersister(), failAfter: 1}
	k := NewScoreKeeper(p, zap.NewNop())

	_, _, err := k.Increment(ctx, "C1", "U1")
	require.NoError(t, err)

	_, _, err = k.Increment(ctx, "C1", "U1")
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceWrite))
	assert.Equal(t, 1, k.CurrentScore("C1", "U1"))
	assert.Len(t, k.Events(), 1)
}

func TestScoreKeeperLoadRejectsUnknownOperation(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	require.NoError(t, p.AppendScore(ctx, ScoreEvent{Channel: "C1", User: "U1", Operation: "**"}))

	err := NewScoreKeeper(p, zap.NewNop()).Load(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrDataIntegrity))
}
