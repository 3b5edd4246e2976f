package events

import "time"

// LevelUp is published when a user's level increases.
type LevelUp struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Level      int64     `json:"level"`
	XP         int64     `json:"xp"`
	ChannelID  string    `json:"channel_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
