package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FSBucket keeps objects as files below a root directory.
type FSBucket struct {
	fs   afero.Fs
	root string
}

// NewFSBucket creates the root directory if needed.
func NewFSBucket(fsys afero.Fs, root string) (*FSBucket, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &FSBucket{fs: fsys, root: root}, nil
}

func (b *FSBucket) objectPath(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(k)), nil
}

func (b *FSBucket) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Put writes to a temp file in the target directory and renames it into place.
func (b *FSBucket) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.objectPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", key, err)
	}

	tmp, err := afero.TempFile(b.fs, dir, ".bv-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = b.fs.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", key, err)
	}
	if err := b.fs.Rename(tmpPath, p); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", key, err)
	}
	return nil
}

func (b *FSBucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := b.objectPath(key)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(b.fs, p)
	if err != nil {
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (b *FSBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.objectPath(key)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// List returns the sorted keys starting with prefix. Temp files are skipped.
func (b *FSBucket) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	err := afero.Walk(b.fs, b.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".bv-tmp-") {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := path.Clean(filepath.ToSlash(rel))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
