// Package lakeerr defines the error taxonomy shared by the table engine.
// Every error carries the structured context (schema, table, object path,
// line) needed to diagnose it without re-running the query.
package lakeerr

import (
	"fmt"
	"strings"
)

// SchemaNotFoundError indicates a schema has no directory mapping or no
// readable table manifest.
type SchemaNotFoundError struct {
	Schema string
	Hint   string
}

func (e *SchemaNotFoundError) Error() string {
	msg := fmt.Sprintf("schema %q not found", e.Schema)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// TableNotFoundError indicates a table is not declared, or no object
// satisfies its filters.
type TableNotFoundError struct {
	Schema string
	Table  string
	Reason string
}

func (e *TableNotFoundError) Error() string {
	msg := fmt.Sprintf("table %s.%s not found", e.Schema, e.Table)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// FileFormatError indicates an object whose content cannot be used to
// derive a schema.
type FileFormatError struct {
	Path   string
	Reason string
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("bad file format in %s: %s", e.Path, e.Reason)
}

// IllegalArgumentError indicates a malformed manifest entry or argument.
type IllegalArgumentError struct {
	Field  string
	Value  string
	Reason string
}

func (e *IllegalArgumentError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "illegal value for %s", e.Field)
	if e.Value != "" {
		fmt.Fprintf(&b, " (%q)", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

// UnexpectedHandleTypeError indicates a handle of the wrong variant was
// passed across the connector surface.
type UnexpectedHandleTypeError struct {
	Want string
	Got  string
}

func (e *UnexpectedHandleTypeError) Error() string {
	return fmt.Sprintf("unexpected handle type: want %s, got %s", e.Want, e.Got)
}

// ConfigError indicates a table definition that is well-formed but cannot
// be applied, such as a partition column with no capture group.
type ConfigError struct {
	Table  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Table == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in table %s: %s", e.Table, e.Reason)
}

// IOError wraps a storage or decode failure with the object it happened on.
// Line is 1-based; zero means the failure is not tied to a line.
type IOError struct {
	Path string
	Line int64
	Err  error
}

func (e *IOError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("reading %s at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ErrSchemaNotFound creates a SchemaNotFoundError.
func ErrSchemaNotFound(schema, hint string) *SchemaNotFoundError {
	return &SchemaNotFoundError{Schema: schema, Hint: hint}
}

// ErrTableNotFound creates a TableNotFoundError with a formatted reason.
func ErrTableNotFound(schema, table, format string, args ...interface{}) *TableNotFoundError {
	return &TableNotFoundError{Schema: schema, Table: table, Reason: fmt.Sprintf(format, args...)}
}

// ErrFileFormat creates a FileFormatError with a formatted reason.
func ErrFileFormat(path, format string, args ...interface{}) *FileFormatError {
	return &FileFormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ErrIllegalArgument creates an IllegalArgumentError with a formatted reason.
func ErrIllegalArgument(field, value, format string, args ...interface{}) *IllegalArgumentError {
	return &IllegalArgumentError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// ErrConfig creates a ConfigError with a formatted reason.
func ErrConfig(table, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Table: table, Reason: fmt.Sprintf(format, args...)}
}

// ErrIO wraps err with the object path and line it occurred at.
func ErrIO(path string, line int64, err error) *IOError {
	return &IOError{Path: path, Line: line, Err: err}
}

// ErrUnexpectedHandleType creates an UnexpectedHandleTypeError.
func ErrUnexpectedHandleType(want string, got interface{}) *UnexpectedHandleTypeError {
	return &UnexpectedHandleTypeError{Want: want, Got: fmt.Sprintf("%T", got)}
}
