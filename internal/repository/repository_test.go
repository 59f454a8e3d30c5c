package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/game"
	"github.com/wfunc/emojirades/internal/models"
)

func TestChannelStateRepository_Upsert(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewChannelStateRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.ChannelState{
		Workspace: "T1", Channel: "C1", Step: "waiting", Winner: "U1", OldWinner: "A",
	}))
	require.NoError(t, repo.Upsert(ctx, &models.ChannelState{
		Workspace: "T1", Channel: "C1", Step: "provided", Winner: "U1", OldWinner: "A",
		Emojirade: models.StringList{"Point Break", "The Matrix"},
	}))
	require.NoError(t, repo.Upsert(ctx, &models.ChannelState{
		Workspace: "T2", Channel: "C1", Step: "new_game",
	}))

	rows, err := repo.FindByWorkspace(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "provided", rows[0].Step)
	assert.Equal(t, models.StringList{"Point Break", "The Matrix"}, rows[0].Emojirade)

	rows, err = repo.FindByWorkspace(ctx, "T9")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScoreEventRepository_Order(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewScoreEventRepository(db)
	ctx := context.Background()

	for i, user := range []string{"U1", "U2", "U3", "U4"} {
		require.NoError(t, repo.Create(ctx, &models.ScoreEvent{
			Workspace: "T1", Channel: "C1", UserID: user, Operation: "++", Timestamp: int64(1700000000 + i),
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.ScoreEvent{
		Workspace: "T2", Channel: "C1", UserID: "U9", Operation: "++", Timestamp: 1700000000,
	}))

	all, err := repo.FindByWorkspace(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "U1", all[0].UserID)
	assert.Equal(t, "U4", all[3].UserID)

	p := NewPage(1, 3)
	page, err := repo.FindByChannel(ctx, "T1", "C1", p)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.Total)
	require.Len(t, page, 3)
	assert.Equal(t, "U4", page[0].UserID)

	p = NewPage(2, 3)
	page, err = repo.FindByChannel(ctx, "T1", "C1", p)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "U1", page[0].UserID)
}

func TestNewPage(t *testing.T) {
	p := NewPage(0, 500)
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, MaxPageSize, p.Size)
	assert.Equal(t, 0, p.offset())
	assert.Equal(t, DefaultPageSize, NewPage(1, 0).Size)
	assert.Equal(t, 20, NewPage(3, 10).offset())
}

func TestGamePersister_RoundTrip(t *testing.T) {
	db := SetupTestDB(t)
	m := NewManager(db)
	ctx := context.Background()

	p := m.Persister("T1")
	store := game.NewStore(p, zap.NewNop())
	ledger := game.NewScoreKeeper(p, zap.NewNop())
	ledger.SetClock(func() time.Time { return time.Unix(1700000000, 0) })

	_, err := store.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)
	_, err = store.Provide(ctx, "C1", "A", []string{"Point Break", "The Matrix"})
	require.NoError(t, err)
	_, _, err = ledger.Increment(ctx, "C1", "U2")
	require.NoError(t, err)
	_, _, err = ledger.Increment(ctx, "C1", "U2")
	require.NoError(t, err)
	_, err = ledger.Decrement(ctx, "C1", "U2")
	require.NoError(t, err)

	reloadedStore := game.NewStore(m.Persister("T1"), zap.NewNop())
	require.NoError(t, reloadedStore.Load(ctx))
	assert.Equal(t, store.Get("C1"), reloadedStore.Get("C1"))

	reloadedLedger := game.NewScoreKeeper(m.Persister("T1"), zap.NewNop())
	require.NoError(t, reloadedLedger.Load(ctx))
	assert.Equal(t, 1, reloadedLedger.CurrentScore("C1", "U2"))
	assert.Equal(t, ledger.Events(), reloadedLedger.Events())

	other := game.NewStore(m.Persister("T2"), zap.NewNop())
	require.NoError(t, other.Load(ctx))
	assert.Empty(t, other.Channels(), "workspaces are isolated")
}

func openRound(t *testing.T, store *game.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := store.Start(ctx, "C1", "U1", "A")
	require.NoError(t, err)
	_, err = store.Provide(ctx, "C1", "A", []string{"Point Break"})
	require.NoError(t, err)
	_, err = store.Begin(ctx, "C1", "U1")
	require.NoError(t, err)
}

func TestGamePersister_CloseRound(t *testing.T) {
	db := SetupTestDB(t)
	m := NewManager(db)
	ctx := context.Background()

	p := m.Persister("T1")
	store := game.NewStore(p, zap.NewNop())
	ledger := game.NewScoreKeeper(p, zap.NewNop())
	openRound(t, store)

	res, err := game.GuessRound(ctx, store, ledger, "C1", "U2")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)

	state, err := m.ChannelStates().FindByWorkspace(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.Equal(t, "U2", state[0].Winner)
	events, err := m.ScoreEvents().FindByWorkspace(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "U2", events[0].UserID)
}

func TestGamePersister_CloseRoundRollsBack(t *testing.T) {
	db := SetupTestDB(t)
	m := NewManager(db)
	ctx := context.Background()

	p := m.Persister("T1")
	store := game.NewStore(p, zap.NewNop())
	ledger := game.NewScoreKeeper(p, zap.NewNop())
	openRound(t, store)

	// The score insert fails inside the transaction, after the state upsert.
	require.NoError(t, db.Migrator().DropTable(&models.ScoreEvent{}))

	_, err := game.AwardRound(ctx, store, ledger, "C1", "U1", "U2")
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, game.StepGuessing, store.Get("C1").Step)
	assert.Empty(t, ledger.Events())

	rows, err := m.ChannelStates().FindByWorkspace(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(game.StepGuessing), rows[0].Step, "the state upsert was rolled back")
}

func TestManager_ChannelHistory(t *testing.T) {
	db := SetupTestDB(t)
	m := NewManager(db)
	ctx := context.Background()

	ledger := game.NewScoreKeeper(m.Persister("T1"), zap.NewNop())
	for _, u := range []string{"U1", "U2", "U3"} {
		_, _, err := ledger.Increment(ctx, "C1", u)
		require.NoError(t, err)
	}
	_, _, err := ledger.Increment(ctx, "C2", "U9")
	require.NoError(t, err)

	events, total, err := m.ChannelHistory(ctx, "T1", "C1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, events, 2)
	assert.Equal(t, "U3", events[0].User)
	assert.Equal(t, game.OpIncrement, events[0].Operation)

	events, _, err = m.ChannelHistory(ctx, "T1", "C1", 2, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "U1", events[0].User)

	events, total, err = m.ChannelHistory(ctx, "T2", "C1", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, events)
}

func TestStringListScan(t *testing.T) {
	var l models.StringList
	require.NoError(t, l.Scan(nil))
	assert.Equal(t, models.StringList{}, l)
	require.NoError(t, l.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, models.StringList{"a", "b"}, l)
	assert.Error(t, l.Scan(42))

	v, err := models.StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
