package memory

import (
	"context"
	"sync"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
)

// MemoryTableStore keeps table documents in process memory. It is used by
// tests and by the "memory" storage driver; nothing survives a restart.
type MemoryTableStore struct {
	mu     sync.Mutex
	tables map[string][]byte
}

func NewMemoryTableStore() *MemoryTableStore {
	return &MemoryTableStore{
		tables: make(map[string][]byte),
	}
}

// ReadTable returns a copy of the stored document, or nil when the table
// has never been written.
func (m *MemoryTableStore) ReadTable(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.tables[name]
	if !ok {
		return nil, nil
	}
	copied := make([]byte, len(doc))
	copy(copied, doc)
	return copied, nil
}

func (m *MemoryTableStore) WriteTable(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	m.tables[name] = copied
	return nil
}

func (m *MemoryTableStore) Close() error {
	return nil
}

var _ interfaces.TableStore = (*MemoryTableStore)(nil)
