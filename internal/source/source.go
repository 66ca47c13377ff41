// Package source decodes the spreadsheet exports the importer reads into
// tables of loosely typed string cells.
//
// Column names are normalized (trimmed, lowercased, whitespace runs replaced
// by underscores) so lookups are stable across hand-edited files. Cells are
// read through Row.Get, which returns the absent Cell when a column is missing
// or a row is short.
package source

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Kind identifies one of the input files.
type Kind string

const (
	Institutions Kind = "institutions"
	Metadata     Kind = "metadata"
	Enrollments  Kind = "enrollments"
)

// Loader yields the table for a source kind.
type Loader interface {
	Load(ctx context.Context, kind Kind) (*Table, error)
}

// DefaultAliases maps alternate column names to their canonical name per source.
var DefaultAliases = map[Kind]map[string]string{
	Enrollments: {"id_parcours_caractere": "id_parcours"},
}

// Cell is a single value. The zero Cell is absent.
type Cell struct {
	value   string
	present bool
}

// Value returns the raw cell text ("" when absent).
func (c Cell) Value() string { return c.value }

// IsAbsent reports whether the column or the cell did not exist in the source.
func (c Cell) IsAbsent() bool { return !c.present }

// IsBlank reports whether the cell is absent or holds only whitespace.
func (c Cell) IsBlank() bool { return !c.present || strings.TrimSpace(c.value) == "" }

// Row is one data row of a table.
type Row struct {
	Index int // 0-based position among the data rows
	Line  int // 1-based line (or sheet row) in the source file
	table *Table
	cells []string
}

// Get returns the cell under column, or the absent Cell.
func (r Row) Get(column string) Cell {
	if r.table == nil {
		return Cell{}
	}
	pos, ok := r.table.index[column]
	if !ok || pos >= len(r.cells) {
		return Cell{}
	}
	return Cell{value: r.cells[pos], present: true}
}

// Table is a decoded source file.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
	index   map[string]int
}

// NewTable builds a table from a header and data records. Rows that are empty
// in every cell are skipped; the remaining rows keep their source line numbers.
// headerLine is the 1-based line of the header.
func NewTable(name string, header []string, records [][]string, headerLine int) *Table {
	t := &Table{
		Name:    name,
		Columns: make([]string, len(header)),
		index:   make(map[string]int, len(header)),
	}
	for i, h := range header {
		col := NormalizeColumn(h)
		t.Columns[i] = col
		if _, dup := t.index[col]; !dup && col != "" {
			t.index[col] = i
		}
	}

	for i, rec := range records {
		if isEmptyRow(rec) {
			continue
		}
		t.Rows = append(t.Rows, Row{
			Index: i,
			Line:  headerLine + i + 1,
			table: t,
			cells: rec,
		})
	}
	return t
}

// NormalizeColumn lowercases a header and replaces whitespace runs with "_".
func NormalizeColumn(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	fields := strings.FieldsFunc(strings.ToLower(h), unicode.IsSpace)
	return strings.Join(fields, "_")
}

// Has reports whether the table has the column.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Missing returns the columns not present in the table.
func (t *Table) Missing(columns ...string) []string {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Rename applies alias → canonical renames. A rename is skipped when the
// canonical column already exists.
func (t *Table) Rename(aliases map[string]string) {
	for alias, canonical := range aliases {
		pos, ok := t.index[alias]
		if !ok || t.Has(canonical) {
			continue
		}
		delete(t.index, alias)
		t.index[canonical] = pos
		t.Columns[pos] = canonical
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// StaticLoader serves tables held in memory.
type StaticLoader map[Kind]*Table

func (l StaticLoader) Load(_ context.Context, kind Kind) (*Table, error) {
	t, ok := l[kind]
	if !ok || t == nil {
		return nil, fmt.Errorf("no %s source configured", kind)
	}
	return t, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
