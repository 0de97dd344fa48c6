// Package storagetest provides an in-memory object store that records the
// calls made against it.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"

	"lakeview/storage"
)

var _ storage.Storage = (*Memory)(nil)

// Memory is a flat map of object paths to contents. Directories exist
// implicitly as path prefixes.
type Memory struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	listed       []string
	reads        map[string]int
	rangeReads   map[string]int

	// OnRead, when set, runs before every Read and ReadRange.
	OnRead func(path string)
}

func NewMemory() *Memory {
	return &Memory{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		reads:        make(map[string]int),
		rangeReads:   make(map[string]int),
	}
}

// Put stores an object.
func (m *Memory) Put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[storage.Clean(p)] = data
}

// PutString stores an object with string content.
func (m *Memory) PutString(p, data string) {
	m.Put(p, []byte(data))
}

// SetContentType sets the media type reported by List for p.
func (m *Memory) SetContentType(p, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contentTypes[storage.Clean(p)] = contentType
}

// Delete removes an object.
func (m *Memory) Delete(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, storage.Clean(p))
}

// Listed returns every directory passed to List, in call order.
func (m *Memory) Listed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.listed...)
}

// Reads returns how many full reads p received.
func (m *Memory) Reads(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[storage.Clean(p)]
}

// RangeReads returns how many ranged reads p received.
func (m *Memory) RangeReads(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rangeReads[storage.Clean(p)]
}

func (m *Memory) children(dir string) []storage.ObjectInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := storage.Clean(dir)
	if prefix != storage.Separator {
		prefix += storage.Separator
	}

	dirs := map[string]bool{}
	var out []storage.ObjectInfo
	for p, data := range m.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.Index(rest, storage.Separator); i >= 0 {
			d := prefix + rest[:i]
			if !dirs[d] {
				dirs[d] = true
				out = append(out, storage.ObjectInfo{Path: d, IsDir: true})
			}
			continue
		}
		out = append(out, storage.ObjectInfo{Path: p, Size: int64(len(data)), ContentType: m.contentTypes[p]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (m *Memory) List(ctx context.Context, dir string) iter.Seq2[storage.ObjectInfo, error] {
	return func(yield func(storage.ObjectInfo, error) bool) {
		m.mu.Lock()
		m.listed = append(m.listed, storage.Clean(dir))
		m.mu.Unlock()

		for _, info := range m.children(dir) {
			if err := ctx.Err(); err != nil {
				yield(storage.ObjectInfo{}, err)
				return
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (m *Memory) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[storage.Clean(p)]
	return ok, nil
}

func (m *Memory) ReadRange(_ context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	if m.OnRead != nil {
		m.OnRead(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[storage.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", p, storage.ErrNotFound)
	}
	m.rangeReads[storage.Clean(p)]++
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (m *Memory) Read(_ context.Context, p string) (io.ReadCloser, error) {
	if m.OnRead != nil {
		m.OnRead(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[storage.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", p, storage.ErrNotFound)
	}
	m.reads[storage.Clean(p)]++
	return io.NopCloser(bytes.NewReader(data)), nil
}
