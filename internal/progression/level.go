package progression

import (
	"math"
	"strings"

	"github.com/levelbot/levelbot/internal/models"
)

// LevelProgress describes how far a user is into their current level.
type LevelProgress struct {
	Level       int64 `json:"level"`
	XP          int64 `json:"xp"`
	Messages    int64 `json:"messages"`
	Percent     int   `json:"percent"`
	XPIntoLevel int64 `json:"xp_into_level"`
	XPNeeded    int64 `json:"xp_needed"`
}

// Level returns floor(xp / xpPerLevel).
func Level(xp, xpPerLevel int64) int64 {
	if xp <= 0 || xpPerLevel <= 0 {
		return 0
	}
	return xp / xpPerLevel
}

// Progress derives the level progress of rec. The level is recomputed from
// xp rather than trusted from the stored field.
func Progress(rec models.ProgressionRecord, xpPerLevel int64) LevelProgress {
	level := Level(rec.XP, xpPerLevel)
	into := rec.XP - level*xpPerLevel
	percent := int(math.Round(100 * float64(into) / float64(xpPerLevel)))
	percent = min(100, max(0, percent))

	return LevelProgress{
		Level:       level,
		XP:          rec.XP,
		Messages:    rec.TotalMessages,
		Percent:     percent,
		XPIntoLevel: into,
		XPNeeded:    xpPerLevel,
	}
}

const (
	barFilled = "🟦"
	barEmpty  = "⬜"
)

// ProgressBar renders percent as a bar of cells squares.
func ProgressBar(percent, cells int) string {
	if cells <= 0 {
		return ""
	}
	filled := int(math.Floor(float64(percent) / (100 / float64(cells))))
	filled = min(cells, max(0, filled))
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, cells-filled)
}
