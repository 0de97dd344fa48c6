// Package catalog holds the logical-table model and the registry that loads
// table manifests from the object store.
package catalog

import (
	"fmt"
	"path"
	"strings"

	"lakeview/codec"
	"lakeview/schema"
)

// DataFileType identifies the record format of a table's objects.
type DataFileType string

const (
	// NDJSON is line-delimited JSON.
	NDJSON DataFileType = "ndjson"
	// Metrics is line-delimited JSON whose object fields carry metric tags
	// and values; inference maps them to typed maps.
	Metrics DataFileType = "metrics"
	CSV     DataFileType = "csv"
)

var dataFileTypeAliases = map[string]DataFileType{
	"ndjson":  NDJSON,
	"json":    NDJSON,
	"ldjson":  NDJSON,
	"metrics": Metrics,
	"csv":     CSV,
}

// ParseDataFileType resolves a manifest data-file-type identifier.
func ParseDataFileType(s string) (DataFileType, error) {
	if t, ok := dataFileTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown data file type %q", s)
}

// Extensions lists the object extensions the type reads.
func (t DataFileType) Extensions() []string {
	switch t {
	case NDJSON, Metrics:
		return []string{".ndjson", ".json", ".ldjson"}
	case CSV:
		return []string{".csv"}
	}
	return nil
}

// MediaTypes lists the content types the type reads.
func (t DataFileType) MediaTypes() []string {
	switch t {
	case NDJSON, Metrics:
		return []string{"application/x-ndjson", "application/json"}
	case CSV:
		return []string{"text/csv"}
	}
	return nil
}

// Supports reports whether an object with the given path and content type
// holds records of this type. A trailing compression extension is ignored.
func (t DataFileType) Supports(p, contentType string) bool {
	ext := strings.ToLower(path.Ext(codec.StripExtension(p)))
	for _, e := range t.Extensions() {
		if ext == e {
			return true
		}
	}
	if contentType == "" {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, m := range t.MediaTypes() {
		if mediaType == m {
			return true
		}
	}
	return false
}

// PartitionDefinition pairs an optional directory regex and an optional
// file regex with their ordered partition columns. Column i corresponds to
// capture group i+1 of its regex.
type PartitionDefinition struct {
	DirectoryFilterRegex      string   `json:"directoryFilterRegex,omitempty"`
	FilterRegex               string   `json:"filterRegex,omitempty"`
	DirectoryFilterPartitions []string `json:"directoryFilterPartitions"`
	FilterPartitions          []string `json:"filterPartitions"`
}

// Columns returns every partition column, directory columns first.
func (p *PartitionDefinition) Columns() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.DirectoryFilterPartitions)+len(p.FilterPartitions))
	out = append(out, p.DirectoryFilterPartitions...)
	return append(out, p.FilterPartitions...)
}

// IsPartitionColumn reports whether name is a directory or file partition.
func (p *PartitionDefinition) IsPartitionColumn(name string) bool {
	for _, c := range p.Columns() {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// LogicalTable is an immutable table definition. Registry reloads replace
// tables wholesale; nothing mutates one after it is built.
type LogicalTable struct {
	Name                string               `json:"name"`
	RootPath            string               `json:"rootPath"`
	DataFileType        DataFileType         `json:"dataFileType"`
	PartitionDefinition *PartitionDefinition `json:"partitionDefinition,omitempty"`
	Columns             []schema.Column      `json:"columnConfig,omitempty"`
}

// HasPredefinedColumns reports whether the manifest fixes the column list.
func (t *LogicalTable) HasPredefinedColumns() bool {
	return len(t.Columns) > 0
}

// TableName is a schema-qualified table name.
type TableName struct {
	Schema string
	Table  string
}

func (n TableName) String() string {
	return n.Schema + "." + n.Table
}
