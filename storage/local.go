package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path"
	"path/filepath"
)

var _ Storage = (*LocalStorage)(nil)

// LocalStorage serves a directory tree on the local filesystem. It is used
// for development and tests.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

func (s *LocalStorage) native(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(Clean(p)))
}

func (s *LocalStorage) List(ctx context.Context, dir string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		entries, err := os.ReadDir(s.native(dir))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(ObjectInfo{}, fmt.Errorf("listing %s: %w", dir, err))
			return
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(ObjectInfo{}, err)
				return
			}

			info := ObjectInfo{Path: Join(dir, e.Name()), IsDir: e.IsDir()}
			if !e.IsDir() {
				fi, err := e.Info()
				if err != nil {
					yield(ObjectInfo{}, fmt.Errorf("stat %s: %w", info.Path, err))
					return
				}
				info.Size = fi.Size()
				info.ContentType = mime.TypeByExtension(path.Ext(e.Name()))
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *LocalStorage) Exists(_ context.Context, filepath string) (bool, error) {
	_, err := os.Stat(s.native(filepath))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", filepath, err)
	}
	return true, nil
}

func (s *LocalStorage) ReadRange(ctx context.Context, filepath string, offset, length int64) (io.ReadCloser, error) {
	f, err := s.open(filepath)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking %s: %w", filepath, err)
	}
	return readCloser{Reader: io.LimitReader(f, length), Closer: f}, nil
}

func (s *LocalStorage) Read(_ context.Context, filepath string) (io.ReadCloser, error) {
	return s.open(filepath)
}

func (s *LocalStorage) open(filepath string) (*os.File, error) {
	f, err := os.Open(s.native(filepath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("opening %s: %w", filepath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath, err)
	}
	return f, nil
}
