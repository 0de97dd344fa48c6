// Package record decodes the objects behind splits into typed rows.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"lakeview/catalog"
	"lakeview/codec"
	"lakeview/lakeerr"
	"lakeview/metrics"
	"lakeview/schema"
	"lakeview/split"
	"lakeview/storage"
)

// State is the position of a Cursor in its row stream.
type State int

const (
	Unstarted State = iota
	Advancing
	Positioned
	Exhausted
	Closed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Advancing:
		return "advancing"
	case Positioned:
		return "positioned"
	case Exhausted:
		return "exhausted"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Cursor streams the rows of one split. It is not safe for concurrent use.
type Cursor struct {
	path    string
	columns []schema.Column
	formats []timeFormat
	logger  *slog.Logger

	body    io.ReadCloser
	decoded io.ReadCloser
	counter *storage.CountingReader
	rows    rows

	state    State
	err      error
	values   []interface{}
	rowCount int64
	readTime time.Duration
	released bool
}

// Open issues a full read of the split's object and prepares a cursor
// projecting columns. Decompression is chosen by file extension alone.
func Open(ctx context.Context, store storage.Storage, sp split.Split, columns []schema.Column, logger *slog.Logger) (*Cursor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	body, err := store.Read(ctx, sp.Path)
	if err != nil {
		return nil, lakeerr.ErrIO(sp.Path, 0, err)
	}
	decoded, err := codec.NewReader(sp.Path, body)
	if err != nil {
		body.Close()
		return nil, lakeerr.ErrIO(sp.Path, 0, fmt.Errorf("opening decompressor: %w", err))
	}
	counter := storage.NewCountingReader(decoded)

	c := &Cursor{
		path:     sp.Path,
		columns:  columns,
		formats:  make([]timeFormat, len(columns)),
		logger:   logger,
		body:     body,
		decoded:  decoded,
		counter:  counter,
		values:   make([]interface{}, len(columns)),
		readTime: time.Since(start),
	}
	for i, col := range columns {
		c.formats[i] = parseTimeFormat(col.Format)
	}
	if sp.DataFileType == catalog.CSV {
		c.rows = newCSVRows(counter)
	} else {
		c.rows = newJSONRows(counter)
	}
	return c, nil
}

// Next advances to the next row. It returns false once the object is
// exhausted, the cursor is closed, or decoding failed; Err tells them apart.
func (c *Cursor) Next() bool {
	if c.state == Exhausted || c.state == Closed {
		return false
	}
	c.state = Advancing

	start := time.Now()
	f, err := c.rows.next()
	if err == nil {
		err = c.project(f)
	}
	c.readTime += time.Since(start)

	if errors.Is(err, io.EOF) {
		c.state = Exhausted
		c.release()
		return false
	}
	if err != nil {
		c.err = lakeerr.ErrIO(c.path, c.rows.line(), err)
		c.state = Exhausted
		c.release()
		return false
	}

	c.rowCount++
	c.state = Positioned
	return true
}

func (c *Cursor) project(f fields) error {
	for i, col := range c.columns {
		v, err := f.field(col.Name)
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		out, err := coerce(col, c.formats[i], v)
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		c.values[i] = out
	}
	return nil
}

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// State reports the cursor's position.
func (c *Cursor) State() State { return c.state }

// Columns returns the projected columns in field-index order.
func (c *Cursor) Columns() []schema.Column { return c.columns }

func (c *Cursor) field(i int) interface{} {
	if c.state != Positioned {
		panic(fmt.Sprintf("record: field %d read while cursor is %s", i, c.state))
	}
	if i < 0 || i >= len(c.values) {
		panic(fmt.Sprintf("record: field index %d out of range [0,%d)", i, len(c.values)))
	}
	return c.values[i]
}

func typed[T any](c *Cursor, i int, getter string) T {
	v, ok := c.field(i).(T)
	if !ok {
		panic(fmt.Sprintf("record: %s called on column %s of type %s", getter, c.columns[i].Name, c.columns[i].Type))
	}
	return v
}

func (c *Cursor) IsNull(i int) bool { return c.field(i) == nil }

func (c *Cursor) Bool(i int) bool { return typed[bool](c, i, "Bool") }

// Long returns integer columns, dates as epoch days and timestamps as
// epoch milliseconds.
func (c *Cursor) Long(i int) int64 { return typed[int64](c, i, "Long") }

func (c *Cursor) Double(i int) float64 { return typed[float64](c, i, "Double") }

// String returns string columns and the original text of json columns.
func (c *Cursor) String(i int) string { return typed[string](c, i, "String") }

// Object returns the decoded value of any column: maps, decimals
// (*big.Rat) and binary values included. It is nil for null fields.
func (c *Cursor) Object(i int) interface{} { return c.field(i) }

// CompletedBytes is the number of decompressed bytes consumed so far.
func (c *Cursor) CompletedBytes() int64 { return c.counter.Count() }

// ReadTime is the time spent opening the object and decoding rows.
func (c *Cursor) ReadTime() time.Duration { return c.readTime }

// Close releases the object stream. It may be called more than once.
func (c *Cursor) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed
	return c.release()
}

func (c *Cursor) release() error {
	if c.released {
		return nil
	}
	c.released = true

	err := c.decoded.Close()
	if cerr := c.body.Close(); err == nil {
		err = cerr
	}
	metrics.RowsRead.Add(float64(c.rowCount))
	metrics.BytesRead.Add(float64(c.counter.Count()))
	c.logger.Debug("released record stream", "path", c.path, "rows", c.rowCount, "bytes", c.counter.Count())
	if err != nil {
		return fmt.Errorf("closing %s: %w", c.path, err)
	}
	return nil
}
