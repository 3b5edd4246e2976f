package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
	"github.com/levelbot/levelbot/internal/metrics"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/progression"
)

type Kind string

const (
	Messages Kind = "messages"
	Voice    Kind = "voice"
)

// ParseKind accepts the kind names plus the historical command aliases.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "messages", "levels", "lvltop":
		return Messages, nil
	case "voice", "voicelevels", "voicetop", "vtop":
		return Voice, nil
	}
	return "", fmt.Errorf("unknown leaderboard %q", s)
}

const DefaultPageSize = 10

var medals = map[int]string{0: "🥇", 1: "🥈", 2: "🥉"}

// Entry is one user's standing before ranking.
type Entry struct {
	UserID       string  `json:"user_id"`
	Level        int64   `json:"level"`
	XP           int64   `json:"xp"`
	Messages     int64   `json:"messages"`
	VoiceSeconds float64 `json:"voice_seconds"`
}

// Row is a ranked, display-ready entry.
type Row struct {
	Position int             `json:"position"`
	Rank     string          `json:"rank"`
	Identity models.Identity `json:"identity"`
	Fallback bool            `json:"fallback"`
	Entry
}

// Page is one window of a leaderboard. It holds no cursor; asking for the
// next page rebuilds from current data.
type Page struct {
	Kind       Kind    `json:"kind"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	PageSize   int     `json:"page_size"`
	Total      int     `json:"total"`
	Rows       []Row   `json:"rows"`
	Thumbnail  *string `json:"thumbnail,omitempty"`
	Empty      bool    `json:"empty"`
}

// FromProgression converts progression rows into entries, deriving the level
// from xp.
func FromProgression(rows map[string]models.ProgressionRecord, xpPerLevel int64) []Entry {
	out := make([]Entry, 0, len(rows))
	for id, rec := range rows {
		out = append(out, Entry{
			UserID:   id,
			Level:    progression.Level(rec.XP, xpPerLevel),
			XP:       rec.XP,
			Messages: rec.TotalMessages,
		})
	}
	return out
}

// FromVoice converts voice totals into entries.
func FromVoice(totals map[string]float64) []Entry {
	out := make([]Entry, 0, len(totals))
	for id, secs := range totals {
		out = append(out, Entry{UserID: id, VoiceSeconds: secs})
	}
	return out
}

// Sort orders entries for kind: level then xp for messages, seconds for
// voice, all descending, with the user id as a stable tiebreak.
func Sort(kind Kind, entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch kind {
		case Voice:
			if a.VoiceSeconds != b.VoiceSeconds {
				return a.VoiceSeconds > b.VoiceSeconds
			}
		default:
			if a.Level != b.Level {
				return a.Level > b.Level
			}
			if a.XP != b.XP {
				return a.XP > b.XP
			}
		}
		return a.UserID < b.UserID
	})
}

// TotalPages is max(1, ceil(count/pageSize)).
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return max(1, (count+pageSize-1)/pageSize)
}

// ClampPage forces page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	return max(1, min(page, totalPages))
}

// RankMarker returns the medal for the top three positions and "<n>."
// for everyone else. Positions are zero-based and absolute.
func RankMarker(position int) string {
	if m, ok := medals[position]; ok {
		return m
	}
	return strconv.Itoa(position+1) + "."
}

// FallbackIdentity is used when a user cannot be resolved.
func FallbackIdentity(userID string) models.Identity {
	suffix := userID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return models.Identity{UserID: userID, Name: "User-" + suffix}
}

// Builder ranks entries and joins them with display identities.
type Builder struct {
	resolver interfaces.IdentityResolver
	pageSize int
	log      *logrus.Logger
	metrics  *metrics.BotMetrics
}

func NewBuilder(resolver interfaces.IdentityResolver, pageSize int, log *logrus.Logger, m *metrics.BotMetrics) *Builder {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Builder{
		resolver: resolver,
		pageSize: pageSize,
		log:      log,
		metrics:  m,
	}
}

func (b *Builder) PageSize() int {
	return b.pageSize
}

// Build sorts entries, clamps page and resolves identities for the rows on
// that page only.
func (b *Builder) Build(ctx context.Context, kind Kind, entries []Entry, page int) Page {
	Sort(kind, entries)

	total := len(entries)
	pages := TotalPages(total, b.pageSize)
	page = ClampPage(page, pages)
	start := (page - 1) * b.pageSize
	end := min(start+b.pageSize, total)

	out := Page{
		Kind:       kind,
		Page:       page,
		TotalPages: pages,
		PageSize:   b.pageSize,
		Total:      total,
		Rows:       make([]Row, 0, end-start),
		Empty:      total == 0,
	}

	for pos := start; pos < end; pos++ {
		entry := entries[pos]
		ident, fallback := b.resolve(ctx, entry.UserID)
		out.Rows = append(out.Rows, Row{
			Position: pos,
			Rank:     RankMarker(pos),
			Identity: ident,
			Fallback: fallback,
			Entry:    entry,
		})
		if pos == 0 && ident.AvatarURL != nil {
			out.Thumbnail = ident.AvatarURL
		}
	}
	return out
}

func (b *Builder) resolve(ctx context.Context, userID string) (models.Identity, bool) {
	if b.resolver != nil {
		ident, err := b.resolver.Resolve(ctx, userID)
		if err == nil {
			if ident.UserID == "" {
				ident.UserID = userID
			}
			return ident, false
		}
		b.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Debug("identity lookup failed, using placeholder")
	}
	b.metrics.ObserveIdentityFallback()
	return FallbackIdentity(userID), true
}
