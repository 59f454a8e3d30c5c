package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/wfunc/emojirades/internal/models"
)

// ScoreEventRepository ledger rows. There is no update or delete.
type ScoreEventRepository interface {
	Repository
	Create(ctx context.Context, event *models.ScoreEvent) error
	// FindByWorkspace returns every row in append order.
	FindByWorkspace(ctx context.Context, workspace string) ([]*models.ScoreEvent, error)
	// FindByChannel returns one page of the channel's rows, newest first.
	// A nil page returns every row.
	FindByChannel(ctx context.Context, workspace, channel string, page *Page) ([]*models.ScoreEvent, error)
}

type scoreEventRepo struct {
	baseRepo
}

// NewScoreEventRepository creates the repository
func NewScoreEventRepository(db *gorm.DB) ScoreEventRepository {
	return &scoreEventRepo{baseRepo{db: db}}
}

func (r *scoreEventRepo) Create(ctx context.Context, event *models.ScoreEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *scoreEventRepo) FindByWorkspace(ctx context.Context, workspace string) ([]*models.ScoreEvent, error) {
	var events []*models.ScoreEvent
	err := r.db.WithContext(ctx).
		Where("workspace = ?", workspace).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *scoreEventRepo) FindByChannel(ctx context.Context, workspace, channel string, page *Page) ([]*models.ScoreEvent, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ScoreEvent{}).
		Where("workspace = ? AND channel = ?", workspace, channel).
		Session(&gorm.Session{})

	if page != nil {
		if err := query.Count(&page.Total).Error; err != nil {
			return nil, err
		}
		query = query.Scopes(page.scope)
	}

	var events []*models.ScoreEvent
	err := query.Order("id DESC").Find(&events).Error
	return events, err
}
