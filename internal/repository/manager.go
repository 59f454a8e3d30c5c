package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/wfunc/emojirades/internal/game"
)

// Manager lazily builds the repositories over one connection.
type Manager struct {
	db *gorm.DB

	channelStatesOnce sync.Once
	channelStates     ChannelStateRepository

	scoreEventsOnce sync.Once
	scoreEvents     ScoreEventRepository
}

// NewManager creates a manager
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// ChannelStates channel state repository
func (m *Manager) ChannelStates() ChannelStateRepository {
	m.channelStatesOnce.Do(func() {
		m.channelStates = NewChannelStateRepository(m.db)
	})
	return m.channelStates
}

// ScoreEvents score ledger repository
func (m *Manager) ScoreEvents() ScoreEventRepository {
	m.scoreEventsOnce.Do(func() {
		m.scoreEvents = NewScoreEventRepository(m.db)
	})
	return m.scoreEvents
}

// Persister returns the game persister of a workspace
func (m *Manager) Persister(workspace string) *GamePersister {
	return NewGamePersister(workspace, m.ChannelStates(), m.ScoreEvents())
}

// ChannelHistory returns one page of a channel's score entries, newest
// first, and the channel's total entry count.
func (m *Manager) ChannelHistory(ctx context.Context, workspace, channel string, page, size int) ([]game.ScoreEvent, int64, error) {
	p := NewPage(page, size)
	rows, err := m.ScoreEvents().FindByChannel(ctx, workspace, channel, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]game.ScoreEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toScoreEvent(row))
	}
	return out, p.Total, nil
}
