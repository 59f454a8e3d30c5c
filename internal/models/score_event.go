package models

import (
	"time"
)

// ScoreEvent one score ledger row. Rows are only ever inserted; ID gives the
// append order.
type ScoreEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Workspace string    `gorm:"size:64;not null;index:idx_score_events_ws_channel" json:"workspace"`
	Channel   string    `gorm:"size:128;not null;index:idx_score_events_ws_channel" json:"channel"`
	UserID    string    `gorm:"size:128;not null" json:"user_id"`
	Operation string    `gorm:"size:2;not null" json:"operation"` // ++, --
	Timestamp int64     `gorm:"not null" json:"timestamp"`         // unix seconds
	CreatedAt time.Time `json:"created_at"`
}

// TableName table name
func (ScoreEvent) TableName() string {
	return "score_events"
}

// All every model managed by migrations, in creation order.
func All() []interface{} {
	return []interface{}{
		&ChannelState{},
		&ScoreEvent{},
	}
}
