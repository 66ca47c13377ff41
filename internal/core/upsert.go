package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/store"
)

// UpsertError wraps a storage error with the row that caused it.
type UpsertError struct {
	Table  *schema.Table
	Key    string
	Values map[string]any // attempted values by column
	Err    error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert %s %q: %v", e.Table.Name, e.Key, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// MissingParentError reports a row whose parent key could not be resolved
// before it reached the store.
type MissingParentError struct {
	Table  string
	Column string
	Value  string
}

func (e *MissingParentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: no parent for %s", e.Table, e.Column)
	}
	return fmt.Sprintf("%s: no parent for %s %q", e.Table, e.Column, e.Value)
}

// upsertSQL caches statements by table and dialect.
var upsertSQL sync.Map

type upsertKey struct {
	table   string
	dialect schema.Dialect
}

// UpsertStatement returns the insert-or-update statement of a table: all
// columns are inserted and, on primary key conflict, every non-key column is
// overwritten.
func UpsertStatement(t *schema.Table, d schema.Dialect) string {
	k := upsertKey{t.Name, d}
	if s, ok := upsertSQL.Load(k); ok {
		return s.(string)
	}

	cols := t.ColumnNames()
	placeholders := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		placeholders[i] = d.Placeholder(i + 1)
		if !t.IsKey(c) {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		t.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(t.PrimaryKey, ", "))
	if len(sets) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET " + strings.Join(sets, ", "))
	}

	s := b.String()
	upsertSQL.Store(k, s)
	return s
}

// merge executes the upsert of one row; values follow the table's column order.
func merge(ctx context.Context, sess store.Session, t *schema.Table, key string, values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("upsert %s: %d values for %d columns", t.Name, len(values), len(t.Columns))
	}
	if err := sess.Exec(ctx, UpsertStatement(t, sess.Dialect()), values...); err != nil {
		byColumn := make(map[string]any, len(values))
		for i, c := range t.Columns {
			byColumn[c.Name] = values[i]
		}
		return &UpsertError{Table: t, Key: key, Values: byColumn, Err: err}
	}
	return nil
}

// UpsertInstitution merges an institution by institution_id.
func UpsertInstitution(ctx context.Context, sess store.Session, e Institution) error {
	return merge(ctx, sess, schema.Institutions, e.ID,
		e.ID, e.Name, e.Type, e.Description)
}

// UpsertOrganizationalUnit merges a unit by unit_code.
func UpsertOrganizationalUnit(ctx context.Context, sess store.Session, e OrganizationalUnit) error {
	return merge(ctx, sess, schema.OrganizationalUnits, e.Code,
		e.Code, e.Label, e.Description, e.InstitutionID)
}

// UpsertDomain merges a domain by domain_code.
func UpsertDomain(ctx context.Context, sess store.Session, e Domain) error {
	return merge(ctx, sess, schema.Domains, e.Code,
		e.Code, e.Label, e.Description)
}

// UpsertProgramFamily merges a program family by family_id.
func UpsertProgramFamily(ctx context.Context, sess store.Session, e ProgramFamily) error {
	return merge(ctx, sess, schema.ProgramFamilies, e.ID,
		e.ID, e.Code, e.Label, e.Description, e.UnitCode, e.DomainCode)
}

// UpsertProgram merges a program by program_id.
func UpsertProgram(ctx context.Context, sess store.Session, e Program) error {
	return merge(ctx, sess, schema.Programs, e.ID,
		e.ID, e.Code, e.Label, e.Description, e.FamilyID, e.CreationYear, e.EndYear)
}

// UpsertAcademicYear merges an academic year by its label.
func UpsertAcademicYear(ctx context.Context, sess store.Session, e AcademicYear) error {
	return merge(ctx, sess, schema.AcademicYears, e.Label,
		e.Label, e.Description)
}

// UpsertStudent merges a student by student_code.
func UpsertStudent(ctx context.Context, sess store.Session, e Student) error {
	return merge(ctx, sess, schema.Students, e.Code,
		e.Code, e.RegistrationNumber, e.LastName, e.FirstNames, e.Sex,
		e.BirthDate, e.BirthPlace, e.Nationality, e.BaccYear, e.BaccSeries,
		e.BaccCenter, e.Address, e.Phone, e.Email, e.IDNumber,
		e.IDIssueDate, e.IDIssuePlace)
}

// UpsertEnrollment merges an enrollment by enrollment_code. A second code
// for the same student, year, program and level violates uq_enrollment_context.
func UpsertEnrollment(ctx context.Context, sess store.Session, e Enrollment) error {
	return merge(ctx, sess, schema.Enrollments, e.Code,
		e.Code, e.StudentCode, e.YearLabel, e.ProgramID, e.Level, e.TrackType)
}
