package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3/database"
)

// Dialect identifies the SQL flavour of a storage engine.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown database driver %q (want postgres or sqlite)", s)
	}
}

// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?" + strconv.Itoa(n)
	}
	return "$" + strconv.Itoa(n)
}

func (d Dialect) gooseDialect() database.Dialect {
	if d == SQLite {
		return database.DialectSQLite3
	}
	return database.DialectPostgres
}

func (d Dialect) migrationDir() string {
	if d == SQLite {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}
