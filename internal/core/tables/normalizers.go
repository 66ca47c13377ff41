package tables

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/petermich29/uf-database/internal/core"
	"github.com/petermich29/uf-database/internal/source"
)

const (
	minYear = 1000
	maxYear = 9999
)

// cell returns the cleaned value of a column ("" when absent).
func cell(row source.Row, name string) string {
	return core.CleanText(row.Get(name).Value())
}

// text returns a column as nullable text.
func text(row source.Row, name string) pgtype.Text {
	return core.ToPgText(row.Get(name).Value())
}

// yearValue reads a year column that may hold a bare year ("2019", "2019.0")
// or a full date, in which case its year is kept. Other numbers are read as
// Excel serial dates.
func yearValue(row source.Row, name string, order core.DateOrder) pgtype.Int4 {
	raw := row.Get(name).Value()
	if y := core.CleanInteger(raw); y.Valid && y.Int32 >= minYear && y.Int32 <= maxYear {
		return y
	}
	if d := core.CleanDate(raw, order); d.Valid {
		return pgtype.Int4{Int32: int32(d.Time.Year()), Valid: true}
	}
	return pgtype.Int4{}
}
