// Package export writes decoded table rows to columnar files.
package export

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"

	"lakeview/record"
	"lakeview/schema"
)

const batchSize = 1024

// ParquetWriter writes rows from one or more cursors sharing a projection
// into a single Parquet file. Every column is optional.
type ParquetWriter struct {
	columns []schema.Column
	pw      *parquet.GenericWriter[map[string]interface{}]
	batch   []map[string]interface{}
	rows    int64
}

func NewParquetWriter(w io.Writer, columns []schema.Column) (*ParquetWriter, error) {
	parquetSchema, err := createParquetSchema(columns)
	if err != nil {
		return nil, fmt.Errorf("creating parquet schema: %w", err)
	}
	return &ParquetWriter{
		columns: columns,
		pw:      parquet.NewGenericWriter[map[string]interface{}](w, parquetSchema),
		batch:   make([]map[string]interface{}, 0, batchSize),
	}, nil
}

// Rows is the number of rows written so far.
func (pw *ParquetWriter) Rows() int64 { return pw.rows + int64(len(pw.batch)) }

// Write drains cur. It does not close the cursor.
func (pw *ParquetWriter) Write(ctx context.Context, cur *record.Cursor) error {
	if len(pw.columns) != len(cur.Columns()) {
		return fmt.Errorf("got %d columns for a cursor projecting %d", len(pw.columns), len(cur.Columns()))
	}
	for cur.Next() {
		row := make(map[string]interface{}, len(pw.columns))
		for i, col := range pw.columns {
			v, err := parquetValue(col, cur.Object(i))
			if err != nil {
				return fmt.Errorf("column %s: %w", col.Name, err)
			}
			row[col.Name] = v
		}
		pw.batch = append(pw.batch, row)

		if len(pw.batch) == batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := pw.flush(); err != nil {
				return err
			}
		}
	}
	return cur.Err()
}

func (pw *ParquetWriter) flush() error {
	if len(pw.batch) == 0 {
		return nil
	}
	if _, err := pw.pw.Write(pw.batch); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	pw.rows += int64(len(pw.batch))
	pw.batch = pw.batch[:0]
	return nil
}

// Close flushes buffered rows and writes the file footer.
func (pw *ParquetWriter) Close() error {
	if err := pw.flush(); err != nil {
		return err
	}
	if err := pw.pw.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}

// WriteParquet drains cur into a Parquet file written to w and returns the
// number of rows written. columns must be the cursor's projection.
func WriteParquet(ctx context.Context, cur *record.Cursor, columns []schema.Column, w io.Writer) (int64, error) {
	pw, err := NewParquetWriter(w, columns)
	if err != nil {
		return 0, err
	}
	if err := pw.Write(ctx, cur); err != nil {
		return pw.Rows(), err
	}
	if err := pw.Close(); err != nil {
		return pw.Rows(), err
	}
	return pw.Rows(), nil
}

func createParquetSchema(columns []schema.Column) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, col := range columns {
		var node parquet.Node

		switch col.Type {
		case schema.Boolean:
			node = parquet.Leaf(parquet.BooleanType)
		case schema.Integer:
			node = parquet.Leaf(parquet.Int32Type)
		case schema.Bigint:
			node = parquet.Leaf(parquet.Int64Type)
		case schema.Double:
			node = parquet.Leaf(parquet.DoubleType)
		case schema.String, schema.Decimal:
			node = parquet.String()
		case schema.Binary:
			node = parquet.Leaf(parquet.ByteArrayType)
		case schema.Date:
			node = parquet.Date()
		case schema.Timestamp:
			node = parquet.Timestamp(parquet.Millisecond)
		case schema.StringMap, schema.DoubleMap, schema.JSON:
			node = parquet.JSON()
		default:
			return nil, fmt.Errorf("unsupported type: %s", col.Type)
		}

		if _, dup := root[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %s", col.Name)
		}
		root[col.Name] = parquet.Optional(node)
	}

	return parquet.NewSchema("schema", root), nil
}

// parquetValue converts a decoded cursor value to the Go value the
// column's Parquet node expects.
func parquetValue(col schema.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case schema.Integer:
		n := v.(int64)
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("column %s: %d is out of range for integer", col.Name, n)
		}
		return int32(n), nil
	case schema.Date:
		return time.Unix(v.(int64)*24*60*60, 0).UTC(), nil
	case schema.Timestamp:
		return time.UnixMilli(v.(int64)).UTC(), nil
	case schema.Decimal:
		return decimalString(v.(*big.Rat)), nil
	case schema.StringMap, schema.DoubleMap:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

func decimalString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
