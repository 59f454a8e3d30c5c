package models

import (
	"time"
)

// ChannelState persisted game state of one channel
type ChannelState struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Workspace string     `gorm:"size:64;not null;uniqueIndex:idx_channel_states_ws_channel" json:"workspace"`
	Channel   string     `gorm:"size:128;not null;uniqueIndex:idx_channel_states_ws_channel" json:"channel"`
	Step      string     `gorm:"size:16;not null" json:"step"`
	Winner    string     `gorm:"size:128" json:"winner"`
	OldWinner string     `gorm:"size:128" json:"old_winner"`
	Emojirade StringList `gorm:"type:text" json:"emojirade"` // JSON array
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName table name
func (ChannelState) TableName() string {
	return "channel_states"
}
