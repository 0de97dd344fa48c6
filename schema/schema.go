// Package schema defines the column type lattice and the Column value shared
// by table definitions, inference and decoding.
package schema

import (
	"fmt"
	"strings"
)

// Type is one member of the closed column type lattice.
type Type string

const (
	Boolean   Type = "boolean"
	Integer   Type = "integer"
	Bigint    Type = "bigint"
	Double    Type = "double"
	Decimal   Type = "decimal"
	String    Type = "string"
	Binary    Type = "binary"
	Date      Type = "date"
	Timestamp Type = "timestamp"
	// StringMap is map<string,string>.
	StringMap Type = "map(string,string)"
	// DoubleMap is map<string,double>.
	DoubleMap Type = "map(string,double)"
	// JSON is an embedded object passed through as its original text.
	JSON Type = "json"
)

var typeAliases = map[string]Type{
	"boolean":            Boolean,
	"bool":               Boolean,
	"integer":            Integer,
	"int":                Integer,
	"bigint":             Bigint,
	"long":               Bigint,
	"double":             Double,
	"float":              Double,
	"decimal":            Decimal,
	"string":             String,
	"varchar":            String,
	"binary":             Binary,
	"varbinary":          Binary,
	"date":               Date,
	"timestamp":          Timestamp,
	"map(string,string)": StringMap,
	"map<string,string>": StringMap,
	"map(string,double)": DoubleMap,
	"map<string,double>": DoubleMap,
	"json":               JSON,
	"json-object":        JSON,
}

// ParseType resolves a type name, accepting the common aliases.
func ParseType(s string) (Type, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

func (t Type) String() string { return string(t) }

// IsMap reports whether t materializes into a native map.
func (t Type) IsMap() bool { return t == StringMap || t == DoubleMap }

// IsTemporal reports whether t honours a Column format annotation.
func (t Type) IsTemporal() bool { return t == Date || t == Timestamp }

// Column describes one column of a logical table.
type Column struct {
	Name        string `json:"name"`
	Type        Type   `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	// Format selects the date/timestamp encoding; ignored for other types.
	Format  string `json:"format,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Label is the name presented to clients.
func (c Column) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// Visible returns the columns not marked hidden, in order.
func Visible(cols []Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the column named name, or -1.
func Index(cols []Column, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
