package game

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// failingPersister fails every write after failAfter successful ones.
type failingPersister struct {
	*MemoryPersister
	failAfter int
	writes    int
}

func (p *failingPersister) SaveState(ctx context.Context, channel string, state ChannelState) error {
	p.writes++
	if p.writes > p.failAfter {
		return errors.New("disk full")
	}
	return p.MemoryPersister.SaveState(ctx, channel, state)
}

func (p *failingPersister) AppendScore(ctx context.Context, ev ScoreEvent) error {
	p.writes++
	if p.writes > p.failAfter {
		return errors.New("disk full")
	}
	return p.MemoryPersister.AppendScore(ctx, ev)
}

func newTestStore(t *testing.T) (*Store, *MemoryPersister) {
	t.Helper()
	p := NewMemoryPersister()
	return NewStore(p, zap.NewNop()), p
}

// guessingStore returns a store with C1 in guessing: A provided "Point Break"
// (alt "The Matrix") to U1.
func guessingStore(t *testing.T) (*Store, *MemoryPersister) {
	t.Helper()
	ctx := context.Background()
	s, p := newTestStore(t)

	_, err := s.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)
	_, err = s.Provide(ctx, "C1", "A", []string{"Point Break", "The Matrix"})
	require.NoError(t, err)
	_, err = s.Begin(ctx, "C1", "U1")
	require.NoError(t, err)
	require.Equal(t, StepGuessing, s.Get("C1").Step)
	return s, p
}

func TestStoreFirstReference(t *testing.T) {
	s, p := newTestStore(t)

	_, ok := s.Lookup("C1")
	assert.False(t, ok)

	st := s.Get("C1")
	assert.Equal(t, StepNewGame, st.Step)
	assert.Empty(t, st.Emojirade)
	assert.Equal(t, []string{"C1"}, s.Channels())

	saved, err := p.LoadStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saved, "first reference is not a mutation")
}

func TestStoreFullRound(t *testing.T) {
	ctx := context.Background()
	s, p := guessingStore(t)

	assert.False(t, s.MatchesGuess("C1", "point blank"))
	assert.True(t, s.MatchesGuess("C1", "THE MATRIX"))
	require.NoError(t, s.CheckGuess("C1", "U2"))

	k := NewScoreKeeper(p, zap.NewNop())
	res, err := GuessRound(ctx, s, k, "C1", "U2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Point Break", "The Matrix"}, res.Before.Emojirade)
	assert.Equal(t, "U2", res.Winner)
	assert.Equal(t, 1, res.Score)
	assert.True(t, res.FirstWin)

	after := s.Get("C1")
	assert.Equal(t, StepWaiting, after.Step)
	assert.Equal(t, "U2", after.Winner)
	assert.Equal(t, "U1", after.OldWinner)
	assert.Empty(t, after.Emojirade)

	saved, err := p.LoadStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, saved["C1"])
	assert.Equal(t, []string{"C1"}, s.AwaitingEmojirade("U1"))
}

func TestStoreGameNotStarted(t *testing.T) {
	ctx := context.Background()
	s, p := newTestStore(t)

	_, err := s.Provide(ctx, "C1", "A", []string{"x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrGameNotStarted))
	msg, ok := RejectionMessage(err)
	assert.True(t, ok)
	assert.Equal(t, MsgGameNotStarted, msg)

	err = s.CheckAward("C1", "U1", "U2")
	assert.True(t, apperrors.Is(err, apperrors.ErrGameNotStarted))

	assert.Equal(t, StepNewGame, s.Get("C1").Step)
	saved, _ := p.LoadStates(ctx)
	assert.Empty(t, saved)
}

func TestStoreStartGuards(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Start(ctx, "C1", "A", "A")
	assert.True(t, apperrors.Is(err, apperrors.ErrGuardRejected))

	_, err = s.Start(ctx, "C1", "", "A")
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingArg))
	assert.Equal(t, StepNewGame, s.Get("C1").Step)
}

func TestStoreRestartClearsRound(t *testing.T) {
	ctx := context.Background()
	s, _ := guessingStore(t)

	st, err := s.Start(ctx, "C1", "U7", "U8")
	require.NoError(t, err)
	assert.Equal(t, StepWaiting, st.Step)
	assert.Equal(t, "U7", st.Winner)
	assert.Equal(t, "U8", st.OldWinner)
	assert.Empty(t, st.Emojirade)
}

func TestStoreProvideGuards(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)

	_, err = s.Provide(ctx, "C1", "U1", []string{"x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotEligible))

	_, err = s.Provide(ctx, "C1", "A", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingArg))

	_, err = s.Begin(ctx, "C1", "U1")
	assert.True(t, apperrors.Is(err, apperrors.ErrWrongStep))
	assert.Equal(t, StepWaiting, s.Get("C1").Step)
}

func TestStoreAwardGuards(t *testing.T) {
	ctx := context.Background()
	s, p := guessingStore(t)
	k := NewScoreKeeper(p, zap.NewNop())
	snapshot := s.Get("C1")

	cases := []struct {
		name    string
		awarder string
		target  string
		msg     string
	}{
		{"winner awards self", "U1", "U1", MsgAwardPlayers},
		{"winner awards provider", "U1", "A", MsgAwardPlayers},
		{"non winner awards", "U3", "U2", MsgNotWinner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.CheckAward("C1", tc.awarder, tc.target)
			require.Error(t, err)
			msg, ok := RejectionMessage(err)
			require.True(t, ok)
			assert.Equal(t, tc.msg, msg)

			_, err = AwardRound(ctx, s, k, "C1", tc.awarder, tc.target)
			assert.Error(t, err)
			assert.Equal(t, snapshot, s.Get("C1"))
			assert.Empty(t, k.Events())
		})
	}

	res, err := AwardRound(ctx, s, k, "C1", "U1", "U2")
	require.NoError(t, err)
	assert.Equal(t, StepGuessing, res.Before.Step)
	assert.Equal(t, "U2", s.Get("C1").Winner)
	assert.Equal(t, 1, k.CurrentScore("C1", "U2"))
}

func TestStoreGuessGuards(t *testing.T) {
	s, _ := guessingStore(t)

	for _, user := range []string{"U1", "A"} {
		err := s.CheckGuess("C1", user)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotEligible), user)
	}
	assert.Equal(t, StepGuessing, s.Get("C1").Step)
}

func TestStorePersistFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{MemoryPersister: NewMemoryPersister(), failAfter: 1}
	s := NewStore(p, zap.NewNop())

	_, err := s.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)

	_, err = s.Provide(ctx, "C1", "A", []string{"Inception"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceWrite))
	assert.True(t, apperrors.IsFatal(err))
	_, ok := RejectionMessage(err)
	assert.False(t, ok)

	st := s.Get("C1")
	assert.Equal(t, StepWaiting, st.Step)
	assert.Empty(t, st.Emojirade)
}

func TestStoreLoad(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	require.NoError(t, p.SaveState(ctx, "C1", ChannelState{Step: StepProvided, Winner: "U1", OldWinner: "A", Emojirade: []string{"Jaws"}}))

	s := NewStore(p, zap.NewNop())
	require.NoError(t, s.Load(ctx))
	st, ok := s.Lookup("C1")
	require.True(t, ok)
	assert.Equal(t, []string{"Jaws"}, st.Emojirade)

	require.NoError(t, p.SaveState(ctx, "C2", ChannelState{Step: Step("paused")}))
	err := s.Load(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnknownStep))
	assert.True(t, apperrors.IsFatal(err))
}

func event(t *testing.T, raw string) *chat.Event {
	t.Helper()
	ev, err := chat.ParseEvent([]byte(raw))
	require.NoError(t, err)
	return ev
}

func TestStoreInfer(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	assert.Empty(t, s.Infer(event(t, `{"channel":"C1","user":"U1","text":":fire:"}`), "UBOT"))

	_, err := s.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)
	_, err = s.Provide(ctx, "C1", "A", []string{"Inception"})
	require.NoError(t, err)

	assert.Equal(t, []Inference{InferBegin}, s.Infer(event(t, `{"channel":"C1","user":"U1","text":":zzz: :building_construction:"}`), "UBOT"))
	assert.Empty(t, s.Infer(event(t, `{"channel":"C1","user":"U2","text":":zzz:"}`), "UBOT"))
	assert.Empty(t, s.Infer(event(t, `{"channel":"C1","user":"U1","text":"dream :zzz:"}`), "UBOT"))

	_, err = s.Begin(ctx, "C1", "U1")
	require.NoError(t, err)

	assert.Equal(t, []Inference{InferGuess}, s.Infer(event(t, `{"channel":"C1","user":"U2","text":"inception"}`), "UBOT"))
	assert.Empty(t, s.Infer(event(t, `{"channel":"C1","user":"U2","bot_id":"B1","text":"inception"}`), "UBOT"))
	assert.Empty(t, s.Infer(event(t, `{"channel":"C1","user":"UBOT","text":"inception"}`), "UBOT"))
	assert.Empty(t, s.Infer(event(t, `{"channel":"C1","user":"U2"}`), "UBOT"))
}
