package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelbot/levelbot/internal/config"
	"github.com/levelbot/levelbot/internal/logger"
	"github.com/levelbot/levelbot/internal/models"
)

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, cfg := range []config.StorageConfig{
		{Driver: "memory"},
		{Driver: "file", Dir: filepath.Join(dir, "tables")},
		{Driver: "bolt", BoltPath: filepath.Join(dir, "levelbot.db")},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			store, err := OpenStore(ctx, cfg)
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.WriteTable(ctx, "bank", []byte(`{"1":{"wallet":5,"bank":0}}`)))
			data, err := store.ReadTable(ctx, "bank")
			require.NoError(t, err)
			assert.JSONEq(t, `{"1":{"wallet":5,"bank":0}}`, string(data))
		})
	}

	_, err := OpenStore(ctx, config.StorageConfig{Driver: "floppy"})
	require.Error(t, err)
}

func TestNewPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "file"
	cfg.Storage.Dir = t.TempDir()
	cfg.Identity.APIBase = ""

	a, err := New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	_, err = a.Bot.HandleMessage(ctx, models.MessageEvent{AuthorID: "9", Text: "hello"})
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	b, err := New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer b.Close(ctx)

	data, err := b.Store.ReadTable(ctx, "levels")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_messages":1`)
}
