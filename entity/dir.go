package entity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Dir serves the files below a root directory. Keys are slash-separated
// paths relative to the root. Content types come from the key's extension,
// so the type given to Put is not stored.
type Dir struct {
	root string
	pool *Pool
}

func NewDir(root string, pool *Pool) *Dir {
	return &Dir{root: root, pool: pool}
}

// ErrInvalidKey is returned for keys that would escape the store.
var ErrInvalidKey = errors.New("invalid key")

func (d *Dir) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "\x00") {
		return "", ErrInvalidKey
	}
	return filepath.Join(d.root, filepath.FromSlash(clean[1:])), nil
}

func (d *Dir) Get(ctx context.Context, key string) (Entity, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	return OpenFile(p, d.pool)
}

// Put writes to a temporary file next to the target and renames it into
// place, so concurrent readers see either the old or the new content.
func (d *Dir) Put(ctx context.Context, key, contentType string, r io.Reader) (Entity, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	err = d.pool.Do(ctx, func() error {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		if _, err := io.Copy(tmp, r); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), p)
	})
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	return OpenFile(p, d.pool)
}

func (d *Dir) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	return d.pool.Do(ctx, func() error {
		err := os.Remove(p)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	})
}
