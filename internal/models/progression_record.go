package models

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// ErrMissingXP is returned when a stored progression row has no xp field.
var ErrMissingXP = errors.New("progression record has no xp")

// ProgressionRecord is the message-XP state of a single user.
type ProgressionRecord struct {
	XP            int64   `json:"xp"`
	Level         int64   `json:"level"`
	TotalMessages int64   `json:"total_messages"`
	LastMessage   float64 `json:"last_message"` // unix seconds
}

// LastMessageAt converts the stored unix timestamp into a time.Time.
func (r ProgressionRecord) LastMessageAt() time.Time {
	if r.LastMessage == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(r.LastMessage)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// StampLastMessage records t as the last qualifying message time.
func (r *ProgressionRecord) StampLastMessage(t time.Time) {
	r.LastMessage = float64(t.UnixNano()) / 1e9
}

// UnmarshalJSON rejects rows without an xp field so they never reach a leaderboard.
func (r *ProgressionRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if _, ok := fields["xp"]; !ok {
		return ErrMissingXP
	}

	type plain ProgressionRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ProgressionRecord(p)
	return nil
}
