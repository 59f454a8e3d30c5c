package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wfunc/emojirades/internal/game"
	"github.com/wfunc/emojirades/internal/models"
)

// GamePersister stores one workspace's channel states and score ledger as
// rows. It implements game.StatePersister, game.LedgerPersister and
// game.RoundPersister.
type GamePersister struct {
	workspace string
	states    ChannelStateRepository
	scores    ScoreEventRepository
}

// NewGamePersister creates a persister scoped to workspace.
func NewGamePersister(workspace string, states ChannelStateRepository, scores ScoreEventRepository) *GamePersister {
	return &GamePersister{workspace: workspace, states: states, scores: scores}
}

// LoadStates implements game.StatePersister.
func (p *GamePersister) LoadStates(ctx context.Context) (map[string]game.ChannelState, error) {
	rows, err := p.states.FindByWorkspace(ctx, p.workspace)
	if err != nil {
		return nil, err
	}
	out := make(map[string]game.ChannelState, len(rows))
	for _, row := range rows {
		out[row.Channel] = game.ChannelState{
			Step:      game.Step(row.Step),
			Winner:    row.Winner,
			OldWinner: row.OldWinner,
			Emojirade: append([]string{}, row.Emojirade...),
		}
	}
	return out, nil
}

// SaveState implements game.StatePersister.
func (p *GamePersister) SaveState(ctx context.Context, channel string, state game.ChannelState) error {
	return p.states.Upsert(ctx, p.stateRow(channel, state))
}

// CloseRound implements game.RoundPersister. The state row and the score row
// commit together or not at all.
func (p *GamePersister) CloseRound(ctx context.Context, channel string, state game.ChannelState, ev game.ScoreEvent) error {
	return p.states.Transaction(ctx, func(tx *gorm.DB) error {
		if err := NewChannelStateRepository(tx).Upsert(ctx, p.stateRow(channel, state)); err != nil {
			return err
		}
		return NewScoreEventRepository(tx).Create(ctx, p.scoreRow(ev))
	})
}

func (p *GamePersister) stateRow(channel string, state game.ChannelState) *models.ChannelState {
	return &models.ChannelState{
		Workspace: p.workspace,
		Channel:   channel,
		Step:      string(state.Step),
		Winner:    state.Winner,
		OldWinner: state.OldWinner,
		Emojirade: models.StringList(append([]string{}, state.Emojirade...)),
	}
}

// LoadLedger implements game.LedgerPersister.
func (p *GamePersister) LoadLedger(ctx context.Context) ([]game.ScoreEvent, error) {
	rows, err := p.scores.FindByWorkspace(ctx, p.workspace)
	if err != nil {
		return nil, err
	}
	out := make([]game.ScoreEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toScoreEvent(row))
	}
	return out, nil
}

// AppendScore implements game.LedgerPersister.
func (p *GamePersister) AppendScore(ctx context.Context, ev game.ScoreEvent) error {
	return p.scores.Create(ctx, p.scoreRow(ev))
}

func (p *GamePersister) scoreRow(ev game.ScoreEvent) *models.ScoreEvent {
	return &models.ScoreEvent{
		Workspace: p.workspace,
		Channel:   ev.Channel,
		UserID:    ev.User,
		Operation: string(ev.Operation),
		Timestamp: ev.Timestamp.Unix(),
	}
}

func toScoreEvent(row *models.ScoreEvent) game.ScoreEvent {
	return game.ScoreEvent{
		Channel:   row.Channel,
		User:      row.UserID,
		Operation: game.Operation(row.Operation),
		Timestamp: time.Unix(row.Timestamp, 0).UTC(),
	}
}
