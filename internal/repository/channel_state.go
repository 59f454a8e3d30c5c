package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/emojirades/internal/models"
)

// ChannelStateRepository channel state rows
type ChannelStateRepository interface {
	Repository
	// Upsert inserts the row or overwrites the existing (workspace, channel) row.
	Upsert(ctx context.Context, state *models.ChannelState) error
	FindByWorkspace(ctx context.Context, workspace string) ([]*models.ChannelState, error)
}

type channelStateRepo struct {
	baseRepo
}

// NewChannelStateRepository creates the repository
func NewChannelStateRepository(db *gorm.DB) ChannelStateRepository {
	return &channelStateRepo{baseRepo{db: db}}
}

func (r *channelStateRepo) Upsert(ctx context.Context, state *models.ChannelState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"step", "winner", "old_winner", "emojirade", "updated_at"}),
		}).
		Create(state).Error
}

func (r *channelStateRepo) FindByWorkspace(ctx context.Context, workspace string) ([]*models.ChannelState, error) {
	var states []*models.ChannelState
	err := r.db.WithContext(ctx).
		Where("workspace = ?", workspace).
		Order("channel").
		Find(&states).Error
	return states, err
}
