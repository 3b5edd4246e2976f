package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set LEVELBOT_TEST_POSTGRES_DSN to run against a live database.
func openTestStore(t *testing.T) *PostgresTableStore {
	t.Helper()
	dsn := os.Getenv("LEVELBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEVELBOT_TEST_POSTGRES_DSN not set")
	}
	store, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestReadMissingTableIsEmpty(t *testing.T) {
	store := openTestStore(t)

	data, err := store.ReadTable(context.Background(), "missing-"+uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestWriteTableUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	name := "bank-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = store.db.ExecContext(context.Background(), `DELETE FROM bot_tables WHERE name = $1`, name)
	})

	require.NoError(t, store.WriteTable(ctx, name, []byte(`{"1":{"wallet":5,"bank":0}}`)))
	require.NoError(t, store.WriteTable(ctx, name, []byte(`{"1":{"wallet":9,"bank":1}}`)))

	data, err := store.ReadTable(ctx, name)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"wallet":9,"bank":1}}`, string(data))

	var rows int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT count(*) FROM bot_tables WHERE name = $1`, name).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}
