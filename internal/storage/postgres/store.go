package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
)

const schema = `CREATE TABLE IF NOT EXISTS bot_tables (
	name       TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresTableStore keeps one row per table. The document column is TEXT
// rather than JSONB so a damaged document is still readable and goes through
// the same recovery path as a damaged file.
type PostgresTableStore struct {
	db *sql.DB
}

// Open connects with the lib/pq driver and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*PostgresTableStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	store := NewPostgresTableStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresTableStore(db *sql.DB) *PostgresTableStore {
	return &PostgresTableStore{
		db: db,
	}
}

func (p *PostgresTableStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresTableStore) ReadTable(ctx context.Context, name string) ([]byte, error) {
	const query = `SELECT document FROM bot_tables WHERE name = $1`

	var document string
	err := p.db.QueryRowContext(ctx, query, name).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(document), nil
}

func (p *PostgresTableStore) WriteTable(ctx context.Context, name string, data []byte) error {
	const query = `INSERT INTO bot_tables (name, document, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if _, err = dbTx.ExecContext(ctx, query, name, string(data)); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (p *PostgresTableStore) Close() error {
	return p.db.Close()
}

var _ interfaces.TableStore = (*PostgresTableStore)(nil)
