package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "/a/b", Clean("a/b/"))
	assert.Equal(t, "/", Clean(""))
	assert.Equal(t, "/a/b/c.json", Join("/a", "b", "c.json"))

	assert.True(t, IsDescendant("/root", "/root/x/y"))
	assert.True(t, IsDescendant("/root", "/root"))
	assert.False(t, IsDescendant("/root", "/rootless/x"))
	assert.True(t, IsDescendant("/", "/anything"))
}

func TestKeyMapping(t *testing.T) {
	tests := []struct {
		prefix, path, key, listPrefix string
	}{
		{"", "/logs/a.json", "logs/a.json", "logs/a.json/"},
		{"lake", "/logs/a.json", "lake/logs/a.json", "lake/logs/a.json/"},
		{"lake/", "/", "lake", "lake/"},
		{"", "/", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.key, keyFor(tt.prefix, tt.path), "keyFor(%q, %q)", tt.prefix, tt.path)
		assert.Equal(t, tt.listPrefix, dirPrefix(tt.prefix, tt.path), "dirPrefix(%q, %q)", tt.prefix, tt.path)
	}
	assert.Equal(t, "/logs/a", pathFor("lake", "lake/logs/a/"))
	assert.Equal(t, "/logs/a.json", pathFor("", "logs/a.json"))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLocalStorage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/a.json", `{"a":1}`)
	writeFile(t, root, "data/sub/b.json", "0123456789")

	s := NewLocalStorage(root)
	ctx := context.Background()

	var listed []ObjectInfo
	for info, err := range s.List(ctx, "/data") {
		require.NoError(t, err)
		listed = append(listed, info)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Path < listed[j].Path })
	require.Len(t, listed, 2)
	assert.Equal(t, ObjectInfo{Path: "/data/a.json", Size: 7, ContentType: "application/json"}, listed[0])
	assert.Equal(t, "/data/sub", listed[1].Path)
	assert.True(t, listed[1].IsDir)

	ok, err := s.Exists(ctx, "/data/sub/b.json")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "/data/missing.json")
	require.NoError(t, err)
	assert.False(t, ok)

	rc, err := s.ReadRange(ctx, "/data/sub/b.json", 2, 3)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "234", string(b))

	_, err = s.Read(ctx, "/data/missing.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_ListMissingDirIsEmpty(t *testing.T) {
	s := NewLocalStorage(t.TempDir())
	for _, err := range s.List(context.Background(), "/nope") {
		t.Fatalf("unexpected entry, err=%v", err)
	}
}

func TestLocalStorage_ListStopsEarly(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, root, "d/"+name, name)
	}
	s := NewLocalStorage(root)

	n := 0
	for range s.List(context.Background(), "/d") {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestCountingReader(t *testing.T) {
	c := NewCountingReader(strings.NewReader("hello world"))
	buf := make([]byte, 4)
	_, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Count())

	_, err = io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, int64(11), c.Count())
}
