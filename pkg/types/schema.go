// Package types provides the core value types shared across the partition
// pruner and its collaborators: column types, table schemas, and the
// scratch row representation used while building composite keys.
package types

import (
	"fmt"
	"math"
)

// ColumnType enumerates the primitive column types the key encoder and
// hash-bucket selector know how to handle.
type ColumnType int

const (
	Int8 ColumnType = iota
	Int16
	Int32
	Int64
	String
	Binary
	Bool
)

func (t ColumnType) String() string {
	switch t {
	case Int8:
		return "INT8"
	case Int16:
		return "INT16"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case String:
		return "STRING"
	case Binary:
		return "BINARY"
	case Bool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// Size returns the fixed encoded width of the type in bytes, or -1 for
// variable-length types (String, Binary).
func (t ColumnType) Size() int {
	switch t {
	case Int8, Bool:
		return 1
	case Int16:
		return 2
	case Int32:
		return 4
	case Int64:
		return 8
	default:
		return -1
	}
}

// IsMinimumValue reports whether value is the type's minimum representable
// value. For the range-key extractor this determines whether a primary-key
// upper bound's non-range suffix is already an exclusive bound (§4.1 Case A).
func (t ColumnType) IsMinimumValue(value interface{}) bool {
	switch t {
	case Int8:
		v, _ := value.(int8)
		return v == math.MinInt8
	case Int16:
		v, _ := value.(int16)
		return v == math.MinInt16
	case Int32:
		v, _ := value.(int32)
		return v == math.MinInt32
	case Int64:
		v, _ := value.(int64)
		return v == math.MinInt64
	case Bool:
		v, _ := value.(bool)
		return v == false
	case String:
		v, _ := value.(string)
		return v == ""
	case Binary:
		v, _ := value.([]byte)
		return len(v) == 0
	default:
		return false
	}
}

// ColumnSchema describes a single column: its stable id, name, type, and
// its position among the schema's columns.
type ColumnSchema struct {
	ID       int32
	Name     string
	Type     ColumnType
	Position int
}

// Schema describes a table's columns and identifies the primary-key prefix.
// The first NumKeyColumns entries of Columns form the primary key, in key
// order.
type Schema struct {
	Columns       []ColumnSchema
	NumKeyColumns int
}

// KeyColumnCount returns the number of primary-key columns.
func (s *Schema) KeyColumnCount() int {
	return s.NumKeyColumns
}

// ColumnByID returns the column and its index for the given column id.
func (s *Schema) ColumnByID(id int32) (ColumnSchema, int, bool) {
	for i, c := range s.Columns {
		if c.ID == id {
			return c, i, true
		}
	}
	return ColumnSchema{}, -1, false
}

// ColumnByIndex returns the column at the given position.
func (s *Schema) ColumnByIndex(idx int) (ColumnSchema, error) {
	if idx < 0 || idx >= len(s.Columns) {
		return ColumnSchema{}, fmt.Errorf("types: column index %d out of range (schema has %d columns)", idx, len(s.Columns))
	}
	return s.Columns[idx], nil
}

// FindColumnByID returns the index of the column with the given id, or -1 if
// not found.
func (s *Schema) FindColumnByID(id int32) int {
	for i, c := range s.Columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// KeyColumns returns the schema's primary-key columns, in key order.
func (s *Schema) KeyColumns() []ColumnSchema {
	return s.Columns[:s.NumKeyColumns]
}

// Row is a scratch tuple of column values, indexed the same way as the
// schema's Columns slice. It stands in for Kudu's ContiguousRow: instead of
// a raw byte buffer sized to the schema's key width, the Go port holds
// typed values directly since Go has no need for the fixed-layout row
// trick the original uses only to reuse a single encoder call path.
type Row struct {
	Values []interface{}
}

// NewRow allocates a Row with n unset (nil) values.
func NewRow(n int) Row {
	return Row{Values: make([]interface{}, n)}
}
