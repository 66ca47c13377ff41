package schema

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func readMigrations(t *testing.T, d Dialect) string {
	t.Helper()
	fsys, err := MigrationFS(d)
	require.NoError(t, err)

	var b strings.Builder
	err = fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		b.Write(data)
		return nil
	})
	require.NoError(t, err)
	return b.String()
}

// ============================================================================
// Declarations vs DDL
// ============================================================================

func TestMigrationsMatchDeclarations(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		ddl := readMigrations(t, d)

		for _, tbl := range All {
			t.Run(string(d)+"/"+tbl.Name, func(t *testing.T) {
				assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+tbl.Name+" (")

				for _, c := range tbl.Columns {
					assert.Contains(t, ddl, "    "+c.Name+" "+c.SQLType(d), "column %s", c.Name)

					if d == SQLite && c.Type == Varchar {
						check := fmt.Sprintf("CONSTRAINT %s CHECK (length(%s) <= %d)",
							tbl.LengthCheckName(c.Name), c.Name, c.Width)
						assert.Contains(t, ddl, check)
					}
				}
				for _, fk := range tbl.ForeignKeys {
					assert.Contains(t, ddl, "CONSTRAINT "+fk.Name+" FOREIGN KEY")
				}
				for _, u := range tbl.Uniques {
					assert.Contains(t, ddl, "CONSTRAINT "+u.Name+" UNIQUE ("+strings.Join(u.Columns, ", ")+")")
				}
				for _, e := range tbl.Enums {
					assert.Contains(t, ddl, "CONSTRAINT "+e.Name+" CHECK ("+e.Column+" IN (")
				}
			})
		}
	}
}

// ============================================================================
// Lookups
// ============================================================================

func TestTableLookups(t *testing.T) {
	cols := Students.ColumnsOfWidth(20)
	require.Len(t, cols, 1)
	assert.Equal(t, "sex", cols[0].Name)

	assert.Len(t, Students.ColumnsOfWidth(50), 5)
	assert.Empty(t, Students.ColumnsOfWidth(7))

	c, ok := Students.ColumnForLengthCheck("ck_students_bacc_series_len")
	require.True(t, ok)
	assert.Equal(t, 50, c.Width)

	_, ok = Students.ColumnForLengthCheck("ck_enrollments_level_len")
	assert.False(t, ok)

	u, ok := Enrollments.UniqueByColumns([]string{"level", "program_id", "student_code", "year_label"})
	require.True(t, ok)
	assert.Equal(t, UniqueEnrollmentCtx, u.Name)

	_, ok = Enrollments.UniqueByColumns([]string{"student_code"})
	assert.False(t, ok)

	tbl, ok := Lookup("program_families")
	require.True(t, ok)
	assert.Same(t, ProgramFamilies, tbl)
	assert.True(t, tbl.IsKey("family_id"))
	assert.False(t, tbl.IsKey("code"))
}

func TestDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"postgres", Postgres, false},
		{"PostgreSQL", Postgres, false},
		{"pgx", Postgres, false},
		{"sqlite3", SQLite, false},
		{" sqlite ", SQLite, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "$3", Postgres.Placeholder(3))
	assert.Equal(t, "?3", SQLite.Placeholder(3))
}

// ============================================================================
// Migrate
// ============================================================================

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "schema.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Migrate(ctx, db, SQLite, logger))
	require.NoError(t, Migrate(ctx, db, SQLite, logger))

	for _, tbl := range All {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", tbl.Name).Scan(&name)
		require.NoError(t, err, "table %s", tbl.Name)
	}
}
