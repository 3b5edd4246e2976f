package bolt

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
)

var bucketTables = []byte("tables")

// BoltTableStore keeps every table document under one key of the tables bucket.
type BoltTableStore struct {
	db *bolt.DB
}

// NewBoltTableStore opens (creating if needed) the database at path.
func NewBoltTableStore(path string, options *bolt.Options) (*BoltTableStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTables)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltTableStore{db: db}, nil
}

func (s *BoltTableStore) ReadTable(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTables).Get([]byte(name))
		if raw != nil {
			// bolt values are only valid inside the transaction
			out = append([]byte(nil), raw...)
		}
		return nil
	})
	return out, err
}

func (s *BoltTableStore) WriteTable(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTables).Put([]byte(name), data)
	})
}

// Close releases the underlying Bolt database handle.
func (s *BoltTableStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ interfaces.TableStore = (*BoltTableStore)(nil)
