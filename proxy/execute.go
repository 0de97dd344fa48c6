package proxy

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"

	"lakeview/catalog"
	"lakeview/connector"
	"lakeview/partition"
	"lakeview/schema"
	"lakeview/split"
)

// UndefinedColumnError reports a query naming a column the table lacks.
type UndefinedColumnError struct {
	Table  string
	Column string
}

func (e *UndefinedColumnError) Error() string {
	return fmt.Sprintf("column %q does not exist in %s", e.Column, e.Table)
}

type field struct {
	name string
	oid  uint32
}

// resultWriter receives a result set. A nil value is SQL NULL.
type resultWriter interface {
	describe(fields []field) error
	row(values [][]byte) error
}

type executor struct {
	conn   *connector.Connector
	logger *slog.Logger
}

// execute runs st and returns its command tag.
func (e *executor) execute(ctx context.Context, st *statement, w resultWriter) (string, error) {
	switch st.kind {
	case showSchemas:
		return e.showSchemas(w)
	case showTables:
		return e.showTables(ctx, st, w)
	case describeTable:
		return e.describe(ctx, st, w)
	case selectRows:
		return e.selectRows(ctx, st, w)
	}
	return "", fmt.Errorf("unsupported statement kind %d", st.kind)
}

func textRow(values ...string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

func (e *executor) showSchemas(w resultWriter) (string, error) {
	if err := w.describe([]field{{"schema_name", pgtype.TextOID}}); err != nil {
		return "", err
	}
	names := e.conn.Metadata.ListSchemaNames()
	for _, name := range names {
		if err := w.row(textRow(name)); err != nil {
			return "", err
		}
	}
	return selectTag(int64(len(names))), nil
}

func (e *executor) showTables(ctx context.Context, st *statement, w resultWriter) (string, error) {
	tables, err := e.conn.Metadata.ListTables(ctx, st.schema)
	if err != nil {
		return "", err
	}
	if err := w.describe([]field{{"table_schema", pgtype.TextOID}, {"table_name", pgtype.TextOID}}); err != nil {
		return "", err
	}
	for _, t := range tables {
		if err := w.row(textRow(t.Schema, t.Table)); err != nil {
			return "", err
		}
	}
	return selectTag(int64(len(tables))), nil
}

func (e *executor) describe(ctx context.Context, st *statement, w resultWriter) (string, error) {
	h, err := e.conn.Metadata.GetTableHandle(ctx, st.schema, st.table)
	if err != nil {
		return "", err
	}
	table, err := e.conn.Metadata.GetTable(ctx, h)
	if err != nil {
		return "", err
	}
	handles, err := e.conn.Metadata.GetColumnHandles(ctx, h)
	if err != nil {
		return "", err
	}

	if err := w.describe([]field{
		{"column_name", pgtype.TextOID},
		{"type", pgtype.TextOID},
		{"extra", pgtype.TextOID},
		{"comment", pgtype.TextOID},
	}); err != nil {
		return "", err
	}
	var n int64
	for _, ch := range handles {
		c := ch.Column
		if c.Hidden {
			continue
		}
		extra := c.Format
		if table.PartitionDefinition.IsPartitionColumn(c.Name) {
			extra = strings.TrimSpace("partition key " + extra)
		}
		if err := w.row(textRow(c.Label(), c.Type.String(), extra, c.Comment)); err != nil {
			return "", err
		}
		n++
	}
	for _, name := range virtualColumns(table, handles) {
		if err := w.row(textRow(name, schema.String.String(), "partition key", "")); err != nil {
			return "", err
		}
		n++
	}
	return selectTag(n), nil
}

// virtualColumns returns the partition columns that no record field backs.
// Their values come from the object path.
func virtualColumns(table *catalog.LogicalTable, handles []connector.ColumnHandle) []string {
	cols := make([]schema.Column, len(handles))
	for i, h := range handles {
		cols[i] = h.Column
	}
	var out []string
	for _, name := range table.PartitionDefinition.Columns() {
		if schema.Index(cols, name) < 0 {
			out = append(out, name)
		}
	}
	return out
}

// outputColumn is a resolved column reference. cursor is the column's
// position in the cursor projection, or -1 for a path-derived partition
// column.
type outputColumn struct {
	name      string
	typ       schema.Type
	cursor    int
	partition string
}

type check struct {
	col    outputColumn
	values []string
}

type selectPlan struct {
	handle     connector.TableHandle
	cursorCols []connector.ColumnHandle
	output     []outputColumn
	checks     []check
	constraint partition.Constraint
	limit      int64
}

func (e *executor) plan(ctx context.Context, st *statement) (*selectPlan, error) {
	h, err := e.conn.Metadata.GetTableHandle(ctx, st.schema, st.table)
	if err != nil {
		return nil, err
	}
	table, err := e.conn.Metadata.GetTable(ctx, h)
	if err != nil {
		return nil, err
	}
	handles, err := e.conn.Metadata.GetColumnHandles(ctx, h)
	if err != nil {
		return nil, err
	}
	recordCols := make([]schema.Column, len(handles))
	for i, ch := range handles {
		recordCols[i] = ch.Column
	}

	p := &selectPlan{handle: h, limit: st.limit}
	cursorPos := make(map[int]int)
	resolve := func(name string) (outputColumn, error) {
		pc := ""
		for _, c := range table.PartitionDefinition.Columns() {
			if strings.EqualFold(c, name) {
				pc = c
				break
			}
		}
		if i := schema.Index(recordCols, name); i >= 0 {
			pos, ok := cursorPos[i]
			if !ok {
				pos = len(p.cursorCols)
				cursorPos[i] = pos
				p.cursorCols = append(p.cursorCols, handles[i])
			}
			return outputColumn{name: recordCols[i].Label(), typ: recordCols[i].Type, cursor: pos, partition: pc}, nil
		}
		if pc != "" {
			return outputColumn{name: pc, typ: schema.String, cursor: -1, partition: pc}, nil
		}
		return outputColumn{}, &UndefinedColumnError{Table: h.String(), Column: name}
	}

	if st.columns == nil {
		for i, c := range recordCols {
			if c.Hidden {
				continue
			}
			p.cursorCols = append(p.cursorCols, handles[i])
			cursorPos[i] = len(p.cursorCols) - 1
			p.output = append(p.output, outputColumn{name: c.Label(), typ: c.Type, cursor: len(p.cursorCols) - 1})
		}
	}
	for _, name := range st.columns {
		col, err := resolve(name)
		if err != nil {
			return nil, err
		}
		p.output = append(p.output, col)
	}

	for _, f := range st.filters {
		col, err := resolve(f.column)
		if err != nil {
			return nil, err
		}
		if col.partition != "" {
			p.constraint = p.constraint.With(col.partition, partition.In(f.values...))
		}
		p.checks = append(p.checks, check{col: col, values: f.values})
	}
	return p, nil
}

func (e *executor) selectRows(ctx context.Context, st *statement, w resultWriter) (string, error) {
	p, err := e.plan(ctx, st)
	if err != nil {
		return "", err
	}

	fields := make([]field, len(p.output))
	for i, c := range p.output {
		fields[i] = field{name: c.name, oid: oidFor(c.typ)}
	}
	if err := w.describe(fields); err != nil {
		return "", err
	}
	if p.limit == 0 {
		return selectTag(0), nil
	}

	src, err := e.conn.Splits.GetSplits(ctx, p.handle, p.constraint)
	if err != nil {
		return "", err
	}
	defer src.Close()

	var rows int64
	for !src.Finished() {
		batch, err := src.NextBatch(ctx, 16)
		if err != nil {
			return "", err
		}
		for _, sp := range batch {
			done, err := e.scan(ctx, p, sp, w, &rows)
			if err != nil {
				return "", err
			}
			if done {
				return selectTag(rows), nil
			}
		}
	}
	return selectTag(rows), nil
}

// scan emits the matching rows of one split. It reports true once the
// limit is reached.
func (e *executor) scan(ctx context.Context, p *selectPlan, sp split.Split, w resultWriter, rows *int64) (bool, error) {
	cur, err := e.conn.Records.GetRecordSet(ctx, connector.SplitHandle{Split: sp}, p.cursorCols)
	if err != nil {
		return false, err
	}
	defer cur.Close()

	text := func(c outputColumn) []byte {
		if c.cursor < 0 {
			v, ok := sp.Partitions[c.partition]
			if !ok {
				return nil
			}
			return []byte(v)
		}
		return formatValue(c.typ, cur.Object(c.cursor))
	}

	for cur.Next() {
		if !matches(p.checks, text) {
			continue
		}
		out := make([][]byte, len(p.output))
		for i, c := range p.output {
			out[i] = text(c)
		}
		if err := w.row(out); err != nil {
			return false, err
		}
		*rows++
		if p.limit > 0 && *rows >= p.limit {
			return true, nil
		}
	}
	return false, cur.Err()
}

func matches(checks []check, text func(outputColumn) []byte) bool {
	for _, c := range checks {
		got := text(c.col)
		if got == nil {
			return false
		}
		ok := false
		for _, want := range c.values {
			if equalText(c.col.typ, string(got), want) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func equalText(typ schema.Type, got, want string) bool {
	switch typ {
	case schema.Boolean:
		a, err1 := strconv.ParseBool(got)
		b, err2 := strconv.ParseBool(want)
		return err1 == nil && err2 == nil && a == b
	case schema.Double, schema.Decimal:
		a, ok1 := new(big.Rat).SetString(got)
		b, ok2 := new(big.Rat).SetString(want)
		return ok1 && ok2 && a.Cmp(b) == 0
	}
	return got == want
}

// formatValue renders a decoded value in Postgres text format.
func formatValue(typ schema.Type, v interface{}) []byte {
	if v == nil {
		return nil
	}
	switch typ {
	case schema.Boolean:
		if v.(bool) {
			return []byte("t")
		}
		return []byte("f")
	case schema.Integer, schema.Bigint:
		return strconv.AppendInt(nil, v.(int64), 10)
	case schema.Double:
		return strconv.AppendFloat(nil, v.(float64), 'g', -1, 64)
	case schema.Decimal:
		r := v.(*big.Rat)
		if r.IsInt() {
			return []byte(r.Num().String())
		}
		return []byte(strings.TrimRight(r.FloatString(18), "0"))
	case schema.Binary:
		return []byte(`\x` + hex.EncodeToString(v.([]byte)))
	case schema.Date:
		return []byte(time.Unix(v.(int64)*24*60*60, 0).UTC().Format("2006-01-02"))
	case schema.Timestamp:
		return []byte(time.UnixMilli(v.(int64)).UTC().Format("2006-01-02 15:04:05.000"))
	case schema.StringMap, schema.DoubleMap:
		b, err := json.Marshal(v)
		if err != nil {
			return []byte(fmt.Sprint(v))
		}
		return b
	}
	if s, ok := v.(string); ok {
		return []byte(s)
	}
	return []byte(fmt.Sprint(v))
}

func oidFor(typ schema.Type) uint32 {
	switch typ {
	case schema.Boolean:
		return pgtype.BoolOID
	case schema.Integer:
		return pgtype.Int4OID
	case schema.Bigint:
		return pgtype.Int8OID
	case schema.Double:
		return pgtype.Float8OID
	case schema.Decimal:
		return pgtype.NumericOID
	case schema.Binary:
		return pgtype.ByteaOID
	case schema.Date:
		return pgtype.DateOID
	case schema.Timestamp:
		return pgtype.TimestampOID
	case schema.StringMap, schema.DoubleMap, schema.JSON:
		return pgtype.JSONOID
	default:
		return pgtype.TextOID
	}
}

func selectTag(n int64) string {
	return "SELECT " + strconv.FormatInt(n, 10)
}
