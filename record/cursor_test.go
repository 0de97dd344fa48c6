package record

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakeview/catalog"
	"lakeview/lakeerr"
	"lakeview/schema"
	"lakeview/split"
	"lakeview/storage"
	"lakeview/storage/storagetest"
)

func openCursor(t *testing.T, store storage.Storage, path string, ft catalog.DataFileType, cols []schema.Column) *Cursor {
	t.Helper()
	c, err := Open(context.Background(), store, split.Split{Path: path, DataFileType: ft}, cols, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCursor_CoercesColumns(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/a.json", `{"a":1,"b":"x","c":94.5,"ok":true,"ts":1496275200,"day":"2017-06-01","tags":{"k":"v","n":3},"stats":{"p50":1.5,"p99":"2"},"raw":{"nested":[1,2]},"price":"12.50"}`+"\n"+`{"a":2}`+"\n")

	cols := []schema.Column{
		{Name: "a", Type: schema.Integer},
		{Name: "b", Type: schema.String},
		{Name: "c", Type: schema.Double},
		{Name: "ok", Type: schema.Boolean},
		{Name: "ts", Type: schema.Timestamp, Format: EpochSeconds},
		{Name: "day", Type: schema.Date},
		{Name: "tags", Type: schema.StringMap},
		{Name: "stats", Type: schema.DoubleMap},
		{Name: "raw", Type: schema.JSON},
		{Name: "price", Type: schema.Decimal},
	}
	c := openCursor(t, store, "/t/a.json", catalog.NDJSON, cols)

	require.True(t, c.Next())
	assert.Equal(t, Positioned, c.State())
	assert.Equal(t, int64(1), c.Long(0))
	assert.Equal(t, "x", c.String(1))
	assert.Equal(t, 94.5, c.Double(2))
	assert.True(t, c.Bool(3))
	assert.Equal(t, int64(1496275200000), c.Long(4))
	assert.Equal(t, int64(17318), c.Long(5))
	assert.Equal(t, map[string]string{"k": "v", "n": "3"}, c.Object(6))
	assert.Equal(t, map[string]float64{"p50": 1.5, "p99": 2}, c.Object(7))
	assert.Equal(t, `{"nested":[1,2]}`, c.String(8))
	assert.Equal(t, 0, big.NewRat(25, 2).Cmp(c.Object(9).(*big.Rat)))

	require.True(t, c.Next())
	assert.Equal(t, int64(2), c.Long(0))
	for i := 1; i < len(cols); i++ {
		assert.True(t, c.IsNull(i), cols[i].Name)
	}

	assert.False(t, c.Next())
	require.NoError(t, c.Err())
	assert.Positive(t, c.CompletedBytes())
}

func TestCursor_Exhaustion(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/a.json", "{\"a\":1}\n\n   \n{\"a\":2} {\"a\":3}\n{\"a\":4}")

	c := openCursor(t, store, "/t/a.json", catalog.NDJSON, []schema.Column{{Name: "a", Type: schema.Bigint}})
	assert.Equal(t, Unstarted, c.State())

	var got []int64
	for c.Next() {
		got = append(got, c.Long(0))
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, got)
	assert.Equal(t, Exhausted, c.State())
	assert.False(t, c.Next())
	assert.False(t, c.Next())
	require.NoError(t, c.Err())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, Closed, c.State())
	assert.False(t, c.Next())
	assert.Panics(t, func() { c.Long(0) })
}

func TestCursor_GetterMisuse(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/a.json", `{"a":1}`)
	c := openCursor(t, store, "/t/a.json", catalog.NDJSON, []schema.Column{{Name: "a", Type: schema.Integer}})

	assert.Panics(t, func() { c.Long(0) }, "before the first row")
	require.True(t, c.Next())
	assert.Panics(t, func() { c.Long(1) }, "index out of range")
	assert.Panics(t, func() { c.String(0) }, "wrong getter")
}

func TestCursor_MalformedLine(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/bad.json", "{\"a\":1}\n\n{\"a\":\n{\"a\":3}\n")

	c := openCursor(t, store, "/t/bad.json", catalog.NDJSON, []schema.Column{{Name: "a", Type: schema.Integer}})
	require.True(t, c.Next())
	assert.False(t, c.Next())

	var ioErr *lakeerr.IOError
	require.ErrorAs(t, c.Err(), &ioErr)
	assert.Equal(t, "/t/bad.json", ioErr.Path)
	assert.Equal(t, int64(3), ioErr.Line)
	assert.False(t, c.Next())
	require.NoError(t, c.Close())
}

func TestCursor_RejectsNonObjects(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/arr.json", "[1,2,3]\n")

	c := openCursor(t, store, "/t/arr.json", catalog.NDJSON, []schema.Column{{Name: "a", Type: schema.Integer}})
	assert.False(t, c.Next())

	var ioErr *lakeerr.IOError
	require.ErrorAs(t, c.Err(), &ioErr)
	assert.Equal(t, int64(1), ioErr.Line)
}

func TestCursor_CoercionFailure(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/a.json", "{\"a\":1}\n{\"a\":\"many\"}\n")

	c := openCursor(t, store, "/t/a.json", catalog.NDJSON, []schema.Column{{Name: "a", Type: schema.Integer}})
	require.True(t, c.Next())
	assert.False(t, c.Next())
	assert.ErrorContains(t, c.Err(), "column a")
}

func TestCursor_Compressed(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("{\"a\":1}\n{\"a\":2}\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	store := storagetest.NewMemory()
	store.Put("/t/a.json.gz", buf.Bytes())

	c := openCursor(t, store, "/t/a.json.gz", catalog.NDJSON, []schema.Column{{Name: "a", Type: schema.Integer}})
	var sum int64
	for c.Next() {
		sum += c.Long(0)
	}
	require.NoError(t, c.Err())
	assert.Equal(t, int64(3), sum)
	assert.Equal(t, int64(16), c.CompletedBytes())
}

func TestCursor_CSV(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutString("/t/a.csv", "id,name,seen\n1,alpha,2017-06-01T00:00:00Z\n2,,\n")

	cols := []schema.Column{
		{Name: "id", Type: schema.Integer},
		{Name: "name", Type: schema.String},
		{Name: "seen", Type: schema.Timestamp},
		{Name: "missing", Type: schema.String},
	}
	c := openCursor(t, store, "/t/a.csv", catalog.CSV, cols)

	require.True(t, c.Next())
	assert.Equal(t, int64(1), c.Long(0))
	assert.Equal(t, "alpha", c.String(1))
	assert.Equal(t, int64(1496275200000), c.Long(2))
	assert.True(t, c.IsNull(3))

	require.True(t, c.Next())
	assert.Equal(t, int64(2), c.Long(0))
	assert.True(t, c.IsNull(1))
	assert.True(t, c.IsNull(2))

	assert.False(t, c.Next())
	require.NoError(t, c.Err())
}

func TestOpen_NotFound(t *testing.T) {
	store := storagetest.NewMemory()
	_, err := Open(context.Background(), store, split.Split{Path: "/t/gone.json"}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	var ioErr *lakeerr.IOError
	assert.ErrorAs(t, err, &ioErr)
}
