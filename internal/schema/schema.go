// Package schema declares the relational tables the importer writes to.
//
// The declarations are plain data. The DDL that provisions them lives in the
// goose migration files under migrations/, one directory per dialect, and
// schema_test.go keeps the two in sync. The declarations are consumed by the
// upsert SQL builder and by the error classifier, which maps a declared column
// width or constraint name back to the offending field.
package schema

import (
	"fmt"
	"slices"
	"strconv"
)

// ColumnType is the storage type of a column.
type ColumnType int

const (
	Varchar ColumnType = iota
	Text
	Integer
	Date
	Timestamp
)

// Column describes a single table column.
type Column struct {
	Name     string
	Type     ColumnType
	Width    int // Declared length for Varchar columns
	Nullable bool
}

// ForeignKey describes a reference from Columns to RefTable(RefColumns).
type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
}

// Unique describes a named uniqueness constraint.
type Unique struct {
	Name    string
	Columns []string
}

// Enum restricts a column to a fixed set of values via a CHECK constraint.
type Enum struct {
	Name   string
	Column string
	Values []string
}

// Table describes one storage table.
type Table struct {
	Name        string
	PrimaryKey  []string
	Columns     []Column
	ForeignKeys []ForeignKey
	Uniques     []Unique
	Enums       []Enum
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns all column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// IsKey reports whether the column is part of the primary key.
func (t *Table) IsKey(name string) bool {
	return slices.Contains(t.PrimaryKey, name)
}

// ColumnsOfWidth returns the varchar columns declared with the given width.
func (t *Table) ColumnsOfWidth(width int) []Column {
	var cols []Column
	for _, c := range t.Columns {
		if c.Type == Varchar && c.Width == width {
			cols = append(cols, c)
		}
	}
	return cols
}

// LengthCheckName is the name of the CHECK constraint that bounds a varchar
// column on engines that do not enforce declared widths.
func (t *Table) LengthCheckName(column string) string {
	return fmt.Sprintf("ck_%s_%s_len", t.Name, column)
}

// ColumnForLengthCheck resolves a length CHECK constraint name to its column.
func (t *Table) ColumnForLengthCheck(constraint string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Type == Varchar && t.LengthCheckName(c.Name) == constraint {
			return c, true
		}
	}
	return Column{}, false
}

// UniqueByName returns the unique constraint with the given name.
func (t *Table) UniqueByName(name string) (Unique, bool) {
	for _, u := range t.Uniques {
		if u.Name == name {
			return u, true
		}
	}
	return Unique{}, false
}

// UniqueByColumns returns the unique constraint covering exactly cols, in any order.
func (t *Table) UniqueByColumns(cols []string) (Unique, bool) {
	for _, u := range t.Uniques {
		if len(u.Columns) != len(cols) {
			continue
		}
		match := true
		for _, c := range cols {
			if !slices.Contains(u.Columns, c) {
				match = false
				break
			}
		}
		if match {
			return u, true
		}
	}
	return Unique{}, false
}

// SQLType renders the column type for the given dialect.
func (c Column) SQLType(d Dialect) string {
	switch c.Type {
	case Varchar:
		if d == SQLite {
			return "TEXT"
		}
		return "VARCHAR(" + strconv.Itoa(c.Width) + ")"
	case Integer:
		return "INTEGER"
	case Date:
		return "DATE"
	case Timestamp:
		if d == SQLite {
			return "TIMESTAMP"
		}
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
