package connector

import (
	"fmt"

	"lakeview/catalog"
	"lakeview/lakeerr"
	"lakeview/partition"
	"lakeview/schema"
	"lakeview/split"
)

// Handle is one of TableHandle, LayoutHandle or SplitHandle. The set is
// closed; switches over it name every variant.
type Handle interface {
	handle()
}

// TableHandle identifies a logical table.
type TableHandle struct {
	Schema string
	Table  string
}

// LayoutHandle is a table together with the partition constraint a query
// placed on it.
type LayoutHandle struct {
	Table      TableHandle
	Constraint partition.Constraint
}

// SplitHandle carries one split to the record set provider.
type SplitHandle struct {
	Split split.Split
}

func (TableHandle) handle()  {}
func (LayoutHandle) handle() {}
func (SplitHandle) handle()  {}

// TransactionHandle is the single transaction value; reads are not
// transactional.
type TransactionHandle struct{}

// ColumnHandle is a column of a table at its position in the column list.
type ColumnHandle struct {
	Column  schema.Column
	Ordinal int
}

func (t TableHandle) Name() catalog.TableName {
	return catalog.TableName{Schema: t.Schema, Table: t.Table}
}

func (t TableHandle) String() string { return t.Name().String() }

func (l LayoutHandle) String() string {
	return fmt.Sprintf("%s where %s", l.Table, l.Constraint)
}

// tableOf returns the table a handle refers to and the constraint it
// carries. Split handles do not name a table.
func tableOf(h Handle) (TableHandle, partition.Constraint, error) {
	switch h := h.(type) {
	case TableHandle:
		return h, nil, nil
	case LayoutHandle:
		return h.Table, h.Constraint, nil
	case SplitHandle:
		return TableHandle{}, nil, lakeerr.ErrUnexpectedHandleType("table or layout handle", h)
	default:
		return TableHandle{}, nil, lakeerr.ErrUnexpectedHandleType("table or layout handle", h)
	}
}

func columns(handles []ColumnHandle) []schema.Column {
	cols := make([]schema.Column, len(handles))
	for i, h := range handles {
		cols[i] = h.Column
	}
	return cols
}
