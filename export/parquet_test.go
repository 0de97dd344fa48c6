package export

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakeview/catalog"
	"lakeview/record"
	"lakeview/schema"
	"lakeview/split"
	"lakeview/storage/storagetest"
)

var columns = []schema.Column{
	{Name: "id", Type: schema.Integer},
	{Name: "name", Type: schema.String},
	{Name: "score", Type: schema.Double},
	{Name: "seen", Type: schema.Timestamp},
	{Name: "day", Type: schema.Date},
	{Name: "price", Type: schema.Decimal},
	{Name: "tags", Type: schema.StringMap},
	{Name: "raw", Type: schema.JSON},
}

func openCursor(t *testing.T, data string, cols []schema.Column) *record.Cursor {
	t.Helper()
	store := storagetest.NewMemory()
	store.PutString("/t/a.json", data)
	cur, err := record.Open(context.Background(), store, split.Split{Path: "/t/a.json", DataFileType: catalog.NDJSON}, cols, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cur.Close() })
	return cur
}

func TestWriteParquet(t *testing.T) {
	cur := openCursor(t,
		`{"id":1,"name":"a","score":1.5,"seen":1496275200000,"day":17318,"price":"12.50","tags":{"k":"v"},"raw":{"x":[1]}}`+"\n"+
			`{"id":2}`+"\n", columns)

	var buf bytes.Buffer
	rows, err := WriteParquet(context.Background(), cur, columns, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.NumRows())

	var names []string
	for _, field := range f.Schema().Fields() {
		names = append(names, field.Name())
		assert.True(t, field.Optional(), field.Name())
	}
	assert.ElementsMatch(t, []string{"id", "name", "score", "seen", "day", "price", "tags", "raw"}, names)
}

func TestWriteParquet_Empty(t *testing.T) {
	cols := columns[:2]
	cur := openCursor(t, "\n", cols)

	var buf bytes.Buffer
	rows, err := WriteParquet(context.Background(), cur, cols, &buf)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.NotZero(t, buf.Len())
}

func TestWriteParquet_ColumnMismatch(t *testing.T) {
	cur := openCursor(t, `{"id":1}`, columns[:1])
	_, err := WriteParquet(context.Background(), cur, columns, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWriteParquet_CursorFailure(t *testing.T) {
	cols := columns[:1]
	cur := openCursor(t, "{\"id\":1}\n{oops\n", cols)
	_, err := WriteParquet(context.Background(), cur, cols, &bytes.Buffer{})
	assert.ErrorContains(t, err, "line 2")
}

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "12.5", decimalString(big.NewRat(25, 2)))
	assert.Equal(t, "7", decimalString(big.NewRat(7, 1)))
	assert.Equal(t, "-0.125", decimalString(big.NewRat(-1, 8)))
}

func TestParquetValue_IntegerRange(t *testing.T) {
	col := schema.Column{Name: "id", Type: schema.Integer}
	tests := []struct {
		in      int64
		want    int32
		wantErr bool
	}{
		{in: 7, want: 7},
		{in: 2147483647, want: 2147483647},
		{in: -2147483648, want: -2147483648},
		{in: 2147483648, wantErr: true},
		{in: -2147483649, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parquetValue(col, tt.in)
		if tt.wantErr {
			assert.ErrorContains(t, err, "out of range", "%d", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParquetWriter_MultipleCursors(t *testing.T) {
	cols := columns[:1]
	var buf bytes.Buffer
	pw, err := NewParquetWriter(&buf, cols)
	require.NoError(t, err)

	require.NoError(t, pw.Write(context.Background(), openCursor(t, "{\"id\":1}\n{\"id\":2}\n", cols)))
	require.NoError(t, pw.Write(context.Background(), openCursor(t, "{\"id\":3}\n", cols)))
	require.NoError(t, pw.Close())
	assert.Equal(t, int64(3), pw.Rows())

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.NumRows())
}
