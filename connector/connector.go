// Package connector exposes the catalog, split generator and record
// decoder through the metadata, split and record set surfaces a query
// engine drives.
package connector

import (
	"context"
	"errors"
	"log/slog"

	"lakeview/catalog"
	"lakeview/config"
	"lakeview/infer"
	"lakeview/lakeerr"
	"lakeview/partition"
	"lakeview/record"
	"lakeview/split"
	"lakeview/storage"
)

// Connector bundles the three surfaces over one store.
type Connector struct {
	Metadata *Metadata
	Splits   *SplitManager
	Records  *RecordSetProvider
}

func New(store storage.Storage, cfg *config.Config, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := catalog.NewRegistry(store, cfg, logger.With("component", "catalog"))
	gen, err := split.NewGenerator(store, cfg, logger.With("component", "split"))
	if err != nil {
		return nil, err
	}
	lister := infer.NewLister(registry, gen, store, cfg, logger.With("component", "infer"))

	return &Connector{
		Metadata: &Metadata{registry: registry, lister: lister, logger: logger},
		Splits:   &SplitManager{registry: registry, gen: gen},
		Records:  &RecordSetProvider{store: store, logger: logger.With("component", "record")},
	}, nil
}

// Begin starts a transaction.
func (c *Connector) Begin() TransactionHandle { return TransactionHandle{} }

// Metadata answers schema, table and column questions.
type Metadata struct {
	registry *catalog.Registry
	lister   *infer.Lister
	logger   *slog.Logger
}

func (m *Metadata) ListSchemaNames() []string {
	return m.registry.ListSchemas()
}

// ListTables lists the tables of schemaName, or of every schema when it is
// empty. Schemas without a manifest are skipped in the latter case.
func (m *Metadata) ListTables(ctx context.Context, schemaName string) ([]catalog.TableName, error) {
	if schemaName != "" {
		return m.registry.ListTables(ctx, schemaName)
	}

	var out []catalog.TableName
	for _, s := range m.registry.ListSchemas() {
		names, err := m.registry.ListTables(ctx, s)
		var snf *lakeerr.SchemaNotFoundError
		if errors.As(err, &snf) {
			m.logger.Warn("skipping schema", "schema", s, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

// GetTableHandle returns a handle for an existing table.
func (m *Metadata) GetTableHandle(ctx context.Context, schemaName, tableName string) (TableHandle, error) {
	if _, err := m.registry.GetTable(ctx, schemaName, tableName); err != nil {
		return TableHandle{}, err
	}
	return TableHandle{Schema: schemaName, Table: tableName}, nil
}

// GetLayout narrows a table handle by a partition constraint.
func (m *Metadata) GetLayout(h Handle, constraint partition.Constraint) (LayoutHandle, error) {
	table, prev, err := tableOf(h)
	if err != nil {
		return LayoutHandle{}, err
	}
	return LayoutHandle{Table: table, Constraint: merge(prev, constraint)}, nil
}

// GetColumnHandles returns every column of the handle's table, hidden
// columns included, in column order.
func (m *Metadata) GetColumnHandles(ctx context.Context, h Handle) ([]ColumnHandle, error) {
	table, _, err := tableOf(h)
	if err != nil {
		return nil, err
	}
	cols, err := m.lister.ListColumns(ctx, table.Schema, table.Table)
	if err != nil {
		return nil, err
	}
	handles := make([]ColumnHandle, len(cols))
	for i, c := range cols {
		handles[i] = ColumnHandle{Column: c, Ordinal: i}
	}
	return handles, nil
}

// GetTable returns the manifest entry behind a handle.
func (m *Metadata) GetTable(ctx context.Context, h Handle) (*catalog.LogicalTable, error) {
	table, _, err := tableOf(h)
	if err != nil {
		return nil, err
	}
	return m.registry.GetTable(ctx, table.Schema, table.Table)
}

// SplitManager enumerates the splits of a table.
type SplitManager struct {
	registry *catalog.Registry
	gen      *split.Generator
}

// GetSplits starts listing the splits of a table or layout handle. A
// layout's constraint is intersected with constraint.
func (s *SplitManager) GetSplits(ctx context.Context, h Handle, constraint partition.Constraint) (*split.Source, error) {
	table, prev, err := tableOf(h)
	if err != nil {
		return nil, err
	}
	t, err := s.registry.GetTable(ctx, table.Schema, table.Table)
	if err != nil {
		return nil, err
	}
	return s.gen.Start(ctx, table.Schema, t, merge(prev, constraint))
}

// RecordSetProvider opens cursors over splits.
type RecordSetProvider struct {
	store  storage.Storage
	logger *slog.Logger
}

// GetRecordSet opens a cursor over a split handle projecting columns in
// the given order.
func (r *RecordSetProvider) GetRecordSet(ctx context.Context, h Handle, cols []ColumnHandle) (*record.Cursor, error) {
	switch h := h.(type) {
	case SplitHandle:
		return record.Open(ctx, r.store, h.Split, columns(cols), r.logger)
	case TableHandle, LayoutHandle:
		return nil, lakeerr.ErrUnexpectedHandleType("split handle", h)
	default:
		return nil, lakeerr.ErrUnexpectedHandleType("split handle", h)
	}
}

func merge(a, b partition.Constraint) partition.Constraint {
	out := a
	for col, d := range b {
		out = out.With(col, d)
	}
	return out
}
