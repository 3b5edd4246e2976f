package interfaces

import "context"

// TableStore persists whole tables as opaque JSON documents.
// A missing table reads as an empty document, not an error.
type TableStore interface {
	ReadTable(ctx context.Context, name string) ([]byte, error)
	WriteTable(ctx context.Context, name string, data []byte) error
	Close() error
}
