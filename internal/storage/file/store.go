package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	interfaces "github.com/levelbot/levelbot/internal/interfaces"
)

// FileTableStore keeps each table as <dir>/<name>.json.
type FileTableStore struct {
	dir string
}

func NewFileTableStore(dir string) (*FileTableStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileTableStore{dir: dir}, nil
}

func (s *FileTableStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// ReadTable returns the raw file contents. A missing directory or file is
// created holding an empty object.
func (s *FileTableStore) ReadTable(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		if err := s.WriteTable(ctx, name, []byte("{}")); err != nil {
			return nil, err
		}
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteTable replaces the file atomically: the document is written to a
// temp file in the same directory, synced, then renamed over the target.
func (s *FileTableStore) WriteTable(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *FileTableStore) Close() error {
	return nil
}

var _ interfaces.TableStore = (*FileTableStore)(nil)
