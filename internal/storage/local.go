package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore writes slips below a directory. The HTTP surface serves that
// directory under BaseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local store: create %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Store(ctx context.Context, data []byte, _ string, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// Clean against a rooted path so ".." cannot climb out of dir.
	rel := strings.TrimPrefix(path.Clean("/"+name), "/")
	if rel == "" {
		return "", fmt.Errorf("local store: empty object name")
	}
	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("local store: mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("local store: write %s: %w", rel, err)
	}
	return s.baseURL + "/" + rel, nil
}
