// Package storage is the narrow object-store surface the table engine
// consumes: lazy per-directory listing, existence checks, ranged reads and
// full reads. Paths are absolute and "/"-separated regardless of backend.
package storage

import (
	"context"
	"errors"
	"io"
	"iter"
	"path"
	"strings"
)

// Separator is the fixed path separator of every backend.
const Separator = "/"

// ErrNotFound is returned (wrapped) when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one listing entry.
type ObjectInfo struct {
	Path        string
	Size        int64
	ContentType string
	IsDir       bool
}

// Storage is implemented by every object-store backend.
type Storage interface {
	// List yields the immediate children of dir. Pages are fetched only as
	// the caller keeps iterating; breaking out of the loop stops listing.
	List(ctx context.Context, dir string) iter.Seq2[ObjectInfo, error]
	Exists(ctx context.Context, filepath string) (bool, error)
	// ReadRange reads length bytes starting at offset.
	ReadRange(ctx context.Context, filepath string, offset, length int64) (io.ReadCloser, error)
	Read(ctx context.Context, filepath string) (io.ReadCloser, error)
}

// Clean normalizes p to an absolute slash path without a trailing separator.
func Clean(p string) string {
	return path.Clean(Separator + strings.TrimPrefix(p, Separator))
}

// Join joins path elements with the store separator.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// IsDescendant reports whether p lies under root (or is root itself).
func IsDescendant(root, p string) bool {
	root, p = Clean(root), Clean(p)
	if root == Separator {
		return true
	}
	return p == root || strings.HasPrefix(p, root+Separator)
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(p)
}

// keyFor maps an absolute store path to a backend key under prefix.
func keyFor(prefix, p string) string {
	rel := strings.TrimPrefix(Clean(p), Separator)
	if prefix == "" {
		return rel
	}
	if rel == "" {
		return strings.TrimSuffix(prefix, Separator)
	}
	return strings.TrimSuffix(prefix, Separator) + Separator + rel
}

// dirPrefix is the listing prefix for the children of dir.
func dirPrefix(prefix, dir string) string {
	k := keyFor(prefix, dir)
	if k == "" {
		return ""
	}
	return k + Separator
}

// pathFor maps a backend key back to an absolute store path.
func pathFor(prefix, key string) string {
	key = strings.TrimSuffix(key, Separator)
	if prefix != "" {
		key = strings.TrimPrefix(key, strings.TrimSuffix(prefix, Separator))
	}
	return Clean(key)
}

type readCloser struct {
	io.Reader
	io.Closer
}
