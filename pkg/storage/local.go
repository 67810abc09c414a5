package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Local implements FileStore on top of the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(l.resolve(path))
}

// Write creates parent directories as needed.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List walks the whole tree and filters by prefix. fs.WalkDir visits
// entries in lexical order, so the output is sorted.
func (l *Local) List(ctx context.Context, prefix string) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		stop := errors.New("stop")
		err := filepath.WalkDir(l.root, func(full string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(l.root, full)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				// Prune directories that cannot contain a match.
				if rel != "." && !strings.HasPrefix(rel+"/", prefix) && !strings.HasPrefix(prefix, rel+"/") {
					return fs.SkipDir
				}
				return nil
			}
			if !strings.HasPrefix(rel, prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if !yield(Object{Path: rel, Size: info.Size(), ModTime: info.ModTime()}, nil) {
				return stop
			}
			return nil
		})
		if err != nil && err != stop {
			yield(Object{}, err)
		}
	}
}
