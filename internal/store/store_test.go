package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petermich29/uf-database/internal/schema"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), Options{
		URL:             filepath.Join(t.TempDir(), "data", "test.db"),
		CreateIfMissing: true,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func countRows(t *testing.T, s *SQLite, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantDSN  string
		wantPath string
	}{
		{
			name:     "plain path",
			url:      "data/uf.db",
			wantDSN:  "data/uf.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
			wantPath: "data/uf.db",
		},
		{
			name:     "scheme prefix",
			url:      "sqlite://uf.db",
			wantDSN:  "uf.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
			wantPath: "uf.db",
		},
		{
			name:     "uri keeps query and existing pragma",
			url:      "file:uf.db?mode=rwc&_pragma=foreign_keys(1)",
			wantDSN:  "file:uf.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
			wantPath: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, path := sqliteDSN(tt.url)
			assert.Equal(t, tt.wantDSN, dsn)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestSQLiteSessionCommitAndRollback(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	assert.Equal(t, schema.SQLite, s.Dialect())

	sess, err := s.OpenSession(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.Exec(ctx, "INSERT INTO domains (domain_code, label) VALUES (?1, ?2)", "SCI", "Sciences"))
	require.NoError(t, sess.Rollback(ctx))

	require.NoError(t, sess.Exec(ctx, "INSERT INTO domains (domain_code, label) VALUES (?1, ?2)", "LET", "Lettres"))
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Close(ctx))

	assert.Equal(t, 1, countRows(t, s, "domains"))
	assert.ErrorIs(t, sess.Exec(ctx, "SELECT 1"), ErrSessionClosed)
	assert.NoError(t, sess.Close(ctx))
}

func TestSQLiteSessionSavepointIsolatesFailure(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	sess, err := s.OpenSession(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)

	require.NoError(t, sess.Exec(ctx, "INSERT INTO domains (domain_code) VALUES (?1)", "D1"))

	require.NoError(t, sess.Exec(ctx, "SAVEPOINT sp_1"))
	err = sess.Exec(ctx, "INSERT INTO organizational_units (unit_code, institution_id) VALUES (?1, ?2)", "FAC1", "missing")
	require.Error(t, err, "foreign keys must be enforced")
	require.NoError(t, sess.Exec(ctx, "ROLLBACK TO SAVEPOINT sp_1"))
	require.NoError(t, sess.Exec(ctx, "RELEASE SAVEPOINT sp_1"))

	require.NoError(t, sess.Exec(ctx, "INSERT INTO domains (domain_code) VALUES (?1)", "D2"))
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Close(ctx))

	assert.Equal(t, 2, countRows(t, s, "domains"))
	assert.Equal(t, 0, countRows(t, s, "organizational_units"))
}

func TestSQLiteLengthCheck(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	sess, err := s.OpenSession(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)

	err = sess.Exec(ctx, "INSERT INTO students (student_code, sex) VALUES (?1, ?2)", "E1", "this value is far too long")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ck_students_sex_len")
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Options{Dialect: "oracle"})
	assert.Error(t, err)
}
