package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petermich29/uf-database/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestStore returns a provisioned SQLite store in a temp directory.
func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), store.Options{
		URL:             filepath.Join(t.TempDir(), "uf.db"),
		CreateIfMissing: true,
		Logger:          discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.EnsureSchema(context.Background()))
	return st
}

func countRows(t *testing.T, st *store.SQLite, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, st.DB().QueryRow(query, args...).Scan(&n))
	return n
}

// seedHierarchy stores one row per parent table plus student E1 enrolled
// as INS0 in P1, 2023-2024, L1.
func seedHierarchy(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	sess, err := st.OpenSession(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)

	require.NoError(t, UpsertInstitution(ctx, sess, Institution{ID: "UNIV1", Name: text("Université Une"), Type: text("public")}))
	require.NoError(t, UpsertOrganizationalUnit(ctx, sess, OrganizationalUnit{Code: "FS", Label: text("Faculté des Sciences"), InstitutionID: text("UNIV1")}))
	require.NoError(t, UpsertDomain(ctx, sess, Domain{Code: "ST", Label: text("Sciences et Technologies")}))
	require.NoError(t, UpsertProgramFamily(ctx, sess, ProgramFamily{ID: "M1", Code: text("INFO"), UnitCode: text("FS"), DomainCode: text("ST")}))
	require.NoError(t, UpsertProgram(ctx, sess, Program{ID: "P1", Code: text("GL"), FamilyID: text("M1")}))
	require.NoError(t, UpsertAcademicYear(ctx, sess, AcademicYear{Label: "2023-2024"}))
	require.NoError(t, UpsertStudent(ctx, sess, Student{Code: "E1", LastName: text("Rakoto")}))
	require.NoError(t, UpsertEnrollment(ctx, sess, Enrollment{Code: "INS0", StudentCode: "E1", YearLabel: "2023-2024", ProgramID: "P1", Level: "L1"}))
	require.NoError(t, sess.Commit(ctx))
}
