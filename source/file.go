package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// FileStore serves objects from a local directory. Keys are slash-separated
// paths relative to the root.
type FileStore struct {
	root string
	opts options
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir, which must exist.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	o, err := newOptions("file-source", opts)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidConfig, abs)
	}
	return &FileStore{root: abs, opts: o}, nil
}

func (s *FileStore) resolve(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	clean := path.Clean(strings.TrimPrefix(key, "/"))
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: %s escapes the store root", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FileStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer f.Close()

	data, err := readLimited(f, key, s.opts.maxSize)
	if err != nil {
		return nil, err
	}
	s.opts.logger.Debug("object fetched", "key", key, "bytes", len(data))
	return data, nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FileStore) Close() error {
	return nil
}
