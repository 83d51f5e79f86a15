package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore пишет объекты в каталог файловой системы
type LocalStore struct {
	dir string
}

// NewLocalStore создает хранилище в каталоге dir
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Put записывает объект. Существующий объект с тем же ключом перезаписывается.
func (s *LocalStore) Put(ctx context.Context, key string, body []byte) error {
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(target, body, 0644); err != nil {
		return fmt.Errorf("failed to write archive object: %w", err)
	}
	return nil
}

// Get читает объект
func (s *LocalStore) Get(key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
}

var _ Store = (*LocalStore)(nil)
