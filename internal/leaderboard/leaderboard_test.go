package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelbot/levelbot/internal/logger"
	"github.com/levelbot/levelbot/internal/models"
)

type stubResolver map[string]models.Identity

func (s stubResolver) Resolve(_ context.Context, userID string) (models.Identity, error) {
	if ident, ok := s[userID]; ok {
		return ident, nil
	}
	return models.Identity{}, errors.New("unknown user")
}

func entries(n int) []Entry {
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Entry{UserID: fmt.Sprintf("10000%02d", i), XP: int64(i * 100)})
	}
	return out
}

func TestPaginationClamps(t *testing.T) {
	b := NewBuilder(nil, 10, logger.Discard(), nil)
	ctx := context.Background()

	p := b.Build(ctx, Messages, entries(23), 0)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Rows, 10)

	p = b.Build(ctx, Messages, entries(23), 99)
	assert.Equal(t, 3, p.Page)
	require.Len(t, p.Rows, 3)
	assert.Equal(t, 20, p.Rows[0].Position)
	assert.Equal(t, "21.", p.Rows[0].Rank)
	assert.Equal(t, 23, p.Total)
}

func TestEmptyLeaderboard(t *testing.T) {
	b := NewBuilder(nil, 10, logger.Discard(), nil)
	p := b.Build(context.Background(), Voice, nil, 5)
	assert.True(t, p.Empty)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Empty(t, p.Rows)
}

func TestMessageOrdering(t *testing.T) {
	list := []Entry{
		{UserID: "a", Level: 1, XP: 7600},
		{UserID: "b", Level: 2, XP: 15000},
		{UserID: "c", Level: 1, XP: 9000},
		{UserID: "d", Level: 1, XP: 9000},
	}
	Sort(Messages, list)

	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.UserID)
	}
	assert.Equal(t, []string{"b", "c", "d", "a"}, ids)
}

func TestVoiceOrdering(t *testing.T) {
	list := FromVoice(map[string]float64{"a": 10, "b": 3600, "c": 59.5})
	Sort(Voice, list)
	assert.Equal(t, "b", list[0].UserID)
	assert.Equal(t, "c", list[1].UserID)
	assert.Equal(t, "a", list[2].UserID)
}

func TestFromProgressionDerivesLevel(t *testing.T) {
	list := FromProgression(map[string]models.ProgressionRecord{
		"x": {XP: 16000, Level: 0, TotalMessages: 900},
	}, 7500)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].Level)
	assert.Equal(t, int64(900), list[0].Messages)
}

func TestRowsResolveIdentityWithFallback(t *testing.T) {
	avatar := "https://cdn.example/a.png"
	resolver := stubResolver{
		"1000000": {UserID: "1000000", Name: "alice", AvatarURL: &avatar},
	}
	b := NewBuilder(resolver, 10, logger.Discard(), nil)

	list := []Entry{
		{UserID: "1000000", Level: 3},
		{UserID: "123456789", Level: 2},
		{UserID: "77", Level: 1},
		{UserID: "5", Level: 0},
	}
	p := b.Build(context.Background(), Messages, list, 1)
	require.Len(t, p.Rows, 4)

	assert.Equal(t, "🥇", p.Rows[0].Rank)
	assert.Equal(t, "alice", p.Rows[0].Identity.Name)
	assert.False(t, p.Rows[0].Fallback)
	assert.Equal(t, &avatar, p.Thumbnail)

	assert.Equal(t, "🥈", p.Rows[1].Rank)
	assert.Equal(t, "User-6789", p.Rows[1].Identity.Name)
	assert.Nil(t, p.Rows[1].Identity.AvatarURL)
	assert.True(t, p.Rows[1].Fallback)

	assert.Equal(t, "🥉", p.Rows[2].Rank)
	assert.Equal(t, "User-77", p.Rows[2].Identity.Name)
	assert.Equal(t, "4.", p.Rows[3].Rank)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("vtop")
	require.NoError(t, err)
	assert.Equal(t, Voice, k)

	k, err = ParseKind("lvltop")
	require.NoError(t, err)
	assert.Equal(t, Messages, k)

	_, err = ParseKind("gambling")
	require.Error(t, err)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 3, TotalPages(23, 10))
}
