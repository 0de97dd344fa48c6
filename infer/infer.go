// Package infer derives a table's columns, either from its manifest entry
// or by sampling the first record of its smallest object.
package infer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"lakeview/catalog"
	"lakeview/codec"
	"lakeview/config"
	"lakeview/lakeerr"
	"lakeview/record"
	"lakeview/schema"
	"lakeview/split"
	"lakeview/storage"
)

// Lister resolves table columns.
type Lister struct {
	registry    *catalog.Registry
	gen         *split.Generator
	store       storage.Storage
	sampleBytes int64
	logger      *slog.Logger
}

func NewLister(registry *catalog.Registry, gen *split.Generator, store storage.Storage, cfg *config.Config, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	sample := cfg.Schema.SampleBytes
	if sample <= 0 {
		sample = config.DefaultSampleBytes
	}
	return &Lister{
		registry:    registry,
		gen:         gen,
		store:       store,
		sampleBytes: sample,
		logger:      logger,
	}
}

// ListColumns returns the ordered columns of schemaName.tableName.
func (l *Lister) ListColumns(ctx context.Context, schemaName, tableName string) ([]schema.Column, error) {
	table, err := l.registry.GetTable(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return l.Columns(ctx, schemaName, table)
}

// Columns returns the manifest's column list when it declares one, and
// otherwise infers columns from the first record of the table's smallest
// object.
func (l *Lister) Columns(ctx context.Context, schemaName string, table *catalog.LogicalTable) ([]schema.Column, error) {
	if table.HasPredefinedColumns() {
		cols := make([]schema.Column, len(table.Columns))
		copy(cols, table.Columns)
		return cols, nil
	}

	sp, err := l.smallest(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	line, err := l.firstLine(ctx, sp)
	if err != nil {
		return nil, err
	}

	var cols []schema.Column
	if table.DataFileType == catalog.CSV {
		cols, err = csvColumns(sp.Path, line)
	} else {
		cols, err = jsonColumns(sp.Path, line, table.DataFileType == catalog.Metrics)
	}
	if err != nil {
		return nil, err
	}
	l.logger.Debug("inferred table columns", "schema", schemaName, "table", table.Name, "sample", sp.Path, "columns", len(cols))
	return cols, nil
}

// smallest lists every object of table and picks the one with the fewest
// bytes, breaking ties by path.
func (l *Lister) smallest(ctx context.Context, schemaName string, table *catalog.LogicalTable) (split.Split, error) {
	src, err := l.gen.Start(ctx, schemaName, table, nil)
	if err != nil {
		return split.Split{}, err
	}
	defer src.Close()

	splits, err := split.Collect(ctx, src, config.DefaultPrefetch)
	if err != nil {
		return split.Split{}, err
	}
	if len(splits) == 0 {
		return split.Split{}, lakeerr.ErrTableNotFound(schemaName, table.Name,
			"no %s objects under %s to infer columns from", table.DataFileType, table.RootPath)
	}

	best := splits[0]
	for _, sp := range splits[1:] {
		if sp.Size < best.Size || (sp.Size == best.Size && sp.Path < best.Path) {
			best = sp
		}
	}
	return best, nil
}

// firstLine returns the first non-blank line of sp. Uncompressed objects
// larger than the sample size are read with a ranged request first; if
// the range ends before the line does, the object is read in full.
func (l *Lister) firstLine(ctx context.Context, sp split.Split) ([]byte, error) {
	if !codec.IsCompressed(sp.Path) && sp.Size > l.sampleBytes {
		line, complete, err := l.scan(ctx, sp.Path, true)
		if err != nil || complete {
			return line, err
		}
		l.logger.Debug("sample range ended mid-line, reading whole object", "path", sp.Path, "sampleBytes", l.sampleBytes)
	}
	line, _, err := l.scan(ctx, sp.Path, false)
	return line, err
}

func (l *Lister) scan(ctx context.Context, path string, ranged bool) (line []byte, complete bool, err error) {
	var rc io.ReadCloser
	if ranged {
		rc, err = l.store.ReadRange(ctx, path, 0, l.sampleBytes)
	} else {
		rc, err = l.store.Read(ctx, path)
	}
	if err != nil {
		return nil, false, lakeerr.ErrIO(path, 0, err)
	}
	defer rc.Close()

	dec, err := codec.NewReader(path, rc)
	if err != nil {
		return nil, false, lakeerr.ErrIO(path, 0, err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	for {
		data, err := br.ReadBytes('\n')
		atEOF := errors.Is(err, io.EOF)
		if err != nil && !atEOF {
			return nil, false, lakeerr.ErrIO(path, 0, err)
		}
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
			// A ranged read cannot tell a final line from a cut one.
			return trimmed, !(atEOF && ranged), nil
		}
		if atEOF {
			if ranged {
				return nil, false, nil
			}
			return nil, false, lakeerr.ErrFileFormat(path, "object contains only blank lines")
		}
	}
}

func csvColumns(path string, line []byte) ([]schema.Column, error) {
	names, err := record.ReadCSVHeader(csv.NewReader(bytes.NewReader(line)))
	if err != nil {
		return nil, lakeerr.ErrFileFormat(path, "reading CSV header: %v", err)
	}
	cols := make([]schema.Column, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, lakeerr.ErrFileFormat(path, "CSV header has an empty column name")
		}
		cols = append(cols, schema.Column{Name: name, Type: schema.String})
	}
	return cols, nil
}

// jsonColumns maps the fields of one JSON object, in declaration order, to
// columns. metrics enables map columns for homogeneous nested objects. A
// repeated key keeps its first value.
func jsonColumns(path string, line []byte, metrics bool) ([]schema.Column, error) {
	if line[0] != '{' {
		return nil, lakeerr.ErrFileFormat(path, "first record is not a JSON object")
	}
	var whole map[string]json.RawMessage
	if err := json.Unmarshal(line, &whole); err != nil {
		return nil, lakeerr.ErrFileFormat(path, "first record is not a single JSON object: %v", err)
	}
	fields, err := record.ObjectFields(line)
	if err != nil {
		return nil, lakeerr.ErrFileFormat(path, "%v", err)
	}

	cols := make([]schema.Column, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, columnFor(f.Name, bytes.TrimSpace(f.Raw), metrics))
	}
	return cols, nil
}

func columnFor(name string, raw []byte, metrics bool) schema.Column {
	col := schema.Column{Name: name}
	switch {
	case len(raw) == 0:
		col.Type, col.Comment = schema.String, "no value in the sampled record"
	case raw[0] == '{':
		col.Type = schema.JSON
		if metrics {
			col.Type = mapType(raw)
		}
	case raw[0] == '[':
		col.Type, col.Comment = schema.String, "array in the sampled record"
	case raw[0] == '"':
		col.Type = schema.String
	case raw[0] == 't' || raw[0] == 'f':
		col.Type = schema.Boolean
	case raw[0] == 'n':
		col.Type, col.Comment = schema.String, "null in the sampled record"
	default:
		col.Type = numberType(string(raw))
	}
	return col
}

// numberType picks the narrowest type that holds a JSON number literal.
func numberType(lit string) schema.Type {
	if strings.ContainsAny(lit, ".eE") {
		return schema.Double
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return schema.Decimal
	}
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return schema.Integer
	}
	return schema.Bigint
}

// mapType returns the map type of an object whose values are all strings
// or all numbers, and json for anything else.
func mapType(raw []byte) schema.Type {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return schema.JSON
	}
	strs, nums := 0, 0
	for _, v := range entries {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0:
		case v[0] == '"':
			strs++
		case v[0] == '-' || (v[0] >= '0' && v[0] <= '9'):
			nums++
		}
	}
	switch len(entries) {
	case strs:
		return schema.StringMap
	case nums:
		return schema.DoubleMap
	}
	return schema.JSON
}
