package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// VoiceRecord is the persisted voice-time total of a single user.
// Seconds are kept as a decimal so repeated flushes of fractional
// durations do not drift.
type VoiceRecord struct {
	VoiceTime decimal.Decimal `json:"voice_time"`
}

// Seconds returns the accumulated time as float seconds.
func (r VoiceRecord) Seconds() float64 {
	return r.VoiceTime.InexactFloat64()
}

// MarshalJSON writes voice_time as a bare JSON number.
func (r VoiceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		VoiceTime json.Number `json:"voice_time"`
	}{VoiceTime: json.Number(r.VoiceTime.String())})
}
