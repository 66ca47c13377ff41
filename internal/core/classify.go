package core

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/petermich29/uf-database/internal/schema"
)

// FailureKind is the classification bucket of a rejected row.
type FailureKind string

const (
	ForeignKeyViolation       FailureKind = "ForeignKeyViolation"
	UniqueConstraintViolation FailureKind = "UniqueConstraintViolation"
	DataTruncationOrTypeError FailureKind = "DataTruncationOrTypeError"
	Unknown                   FailureKind = "Unknown"
)

// FailureKinds lists the buckets in report order.
var FailureKinds = []FailureKind{
	ForeignKeyViolation,
	UniqueConstraintViolation,
	DataTruncationOrTypeError,
	Unknown,
}

// SubcaseDuplicateEnrollment marks a unique violation on the enrollment
// context (same student, year, program and level under another code).
const SubcaseDuplicateEnrollment = "duplicate enrollment context"

// Postgres SQLSTATE codes.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgStringTruncation    = "22001"
	pgDataExceptionClass  = "22"
)

// Classification describes why a row was rejected.
type Classification struct {
	Kind         FailureKind
	Subcase      string
	SuspectField string // best guess at the offending column
	Code         string // engine error code
	Constraint   string
	Detail       string // original error text
}

// Hint returns the summary message of the classification.
func (c Classification) Hint() UserMessage {
	if c.Subcase == SubcaseDuplicateEnrollment {
		return duplicateEnrollmentMessage
	}
	if msg, ok := kindMessages[c.Kind]; ok {
		return msg
	}
	return defaultMessage
}

// failurePattern maps an error text fragment to a bucket when the error
// carries no engine code.
type failurePattern struct {
	pattern string
	kind    FailureKind
}

// failurePatterns are matched case-insensitively; the first match wins.
var failurePatterns = []failurePattern{
	{"violates foreign key", ForeignKeyViolation},
	{"foreign key constraint", ForeignKeyViolation},
	{"duplicate key", UniqueConstraintViolation},
	{"violates unique", UniqueConstraintViolation},
	{"unique constraint", UniqueConstraintViolation},
	{"value too long", DataTruncationOrTypeError},
	{"check constraint", DataTruncationOrTypeError},
	{"invalid input syntax", DataTruncationOrTypeError},
	{"out of range", DataTruncationOrTypeError},
	{"datatype mismatch", DataTruncationOrTypeError},
	{"date/time field value", DataTruncationOrTypeError},
}

var varcharWidth = regexp.MustCompile(`character varying\((\d+)\)`)

// Classify buckets a row failure. It accepts any error and never panics;
// errors it cannot explain are Unknown.
func Classify(err error) (c Classification) {
	if err == nil {
		return Classification{}
	}

	c = Classification{Kind: Unknown, Detail: err.Error()}
	defer func() {
		if r := recover(); r != nil {
			c = Classification{Kind: Unknown, Detail: err.Error()}
		}
	}()

	var mp *MissingParentError
	if errors.As(err, &mp) {
		c.Kind, c.SuspectField = ForeignKeyViolation, mp.Column
		return c
	}

	var table *schema.Table
	var values map[string]any
	var ue *UpsertError
	if errors.As(err, &ue) {
		table, values = ue.Table, ue.Values
	}

	var pgErr *pgconn.PgError
	var sqErr *sqlite.Error
	switch {
	case errors.As(err, &pgErr):
		classifyPostgres(&c, pgErr, table, values)
	case errors.As(err, &sqErr):
		classifySQLite(&c, sqErr, table, values)
	default:
		classifyText(&c, table, values)
	}
	return c
}

func classifyPostgres(c *Classification, e *pgconn.PgError, t *schema.Table, values map[string]any) {
	c.Code = e.Code
	c.Constraint = e.ConstraintName
	if e.Detail != "" {
		c.Detail = e.Message + ": " + e.Detail
	}

	switch {
	case e.Code == pgForeignKeyViolation:
		c.Kind = ForeignKeyViolation
		c.SuspectField = foreignKeyField(t, e.ConstraintName)
	case e.Code == pgUniqueViolation:
		c.Kind = UniqueConstraintViolation
		if e.ConstraintName == schema.UniqueEnrollmentCtx {
			c.Subcase = SubcaseDuplicateEnrollment
		}
		if t != nil {
			if u, ok := t.UniqueByName(e.ConstraintName); ok && len(u.Columns) == 1 {
				c.SuspectField = u.Columns[0]
			}
		}
	case e.Code == pgStringTruncation:
		c.Kind = DataTruncationOrTypeError
		c.SuspectField = guessByWidth(e.Message, t, values)
	case e.Code == pgCheckViolation:
		c.Kind = DataTruncationOrTypeError
		c.SuspectField = checkField(t, e.ConstraintName)
	case strings.HasPrefix(e.Code, pgDataExceptionClass):
		c.Kind = DataTruncationOrTypeError
		c.SuspectField = e.ColumnName
	}
}

func classifySQLite(c *Classification, e *sqlite.Error, t *schema.Table, values map[string]any) {
	code := e.Code()
	c.Code = strconv.Itoa(code)
	msg := e.Error()

	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		c.Kind = ForeignKeyViolation
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		c.Kind = UniqueConstraintViolation
		uniqueFromMessage(c, msg, t)
	case code == sqlite3.SQLITE_CONSTRAINT_CHECK:
		c.Kind = DataTruncationOrTypeError
		checkFromMessage(c, msg, t)
	case code&0xff == sqlite3.SQLITE_MISMATCH:
		c.Kind = DataTruncationOrTypeError
	case code&0xff == sqlite3.SQLITE_CONSTRAINT:
		// Extended codes disabled: fall back to the message.
		classifyText(c, t, values)
	}
}

func classifyText(c *Classification, t *schema.Table, values map[string]any) {
	lower := strings.ToLower(c.Detail)
	for _, fp := range failurePatterns {
		if strings.Contains(lower, fp.pattern) {
			c.Kind = fp.kind
			break
		}
	}

	switch c.Kind {
	case UniqueConstraintViolation:
		if strings.Contains(c.Detail, schema.UniqueEnrollmentCtx) {
			c.Constraint = schema.UniqueEnrollmentCtx
			c.Subcase = SubcaseDuplicateEnrollment
		} else {
			uniqueFromMessage(c, c.Detail, t)
		}
	case DataTruncationOrTypeError:
		if varcharWidth.MatchString(c.Detail) {
			c.SuspectField = guessByWidth(c.Detail, t, values)
		} else {
			checkFromMessage(c, c.Detail, t)
		}
	}
}

// uniqueFromMessage resolves "UNIQUE constraint failed: t.a, t.b" to the
// declared constraint covering those columns.
func uniqueFromMessage(c *Classification, msg string, t *schema.Table) {
	_, list, ok := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !ok {
		return
	}
	list, _, _ = strings.Cut(list, " (")

	var cols []string
	for _, qualified := range strings.Split(list, ",") {
		qualified = strings.TrimSpace(qualified)
		if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
			if t == nil {
				t, _ = schema.Lookup(qualified[:i])
			}
			qualified = qualified[i+1:]
		}
		if qualified != "" {
			cols = append(cols, qualified)
		}
	}
	if len(cols) == 1 {
		c.SuspectField = cols[0]
	}

	if t == nil {
		return
	}
	if u, ok := t.UniqueByColumns(cols); ok {
		c.Constraint = u.Name
		if u.Name == schema.UniqueEnrollmentCtx {
			c.Subcase = SubcaseDuplicateEnrollment
		}
	}
}

// checkFromMessage extracts the constraint of "CHECK constraint failed: name".
func checkFromMessage(c *Classification, msg string, t *schema.Table) {
	_, name, ok := strings.Cut(msg, "CHECK constraint failed: ")
	if !ok {
		return
	}
	name, _, _ = strings.Cut(name, " (")
	name = strings.TrimSpace(name)
	c.Constraint = name
	c.SuspectField = checkField(t, name)
}

// checkField maps a CHECK constraint name to its column.
func checkField(t *schema.Table, constraint string) string {
	if t == nil || constraint == "" {
		return ""
	}
	if col, ok := t.ColumnForLengthCheck(constraint); ok {
		return col.Name
	}
	for _, e := range t.Enums {
		if e.Name == constraint {
			return e.Column
		}
	}
	return ""
}

func foreignKeyField(t *schema.Table, constraint string) string {
	if t == nil {
		return ""
	}
	for _, fk := range t.ForeignKeys {
		if fk.Name == constraint {
			return strings.Join(fk.Columns, ",")
		}
	}
	return ""
}

// guessByWidth picks the columns declared with the width named in a
// "value too long for type character varying(N)" message. Columns whose
// attempted value is longer than N are preferred.
func guessByWidth(msg string, t *schema.Table, values map[string]any) string {
	m := varcharWidth.FindStringSubmatch(msg)
	if m == nil || t == nil {
		return ""
	}
	width, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}

	candidates := t.ColumnsOfWidth(width)
	var over, all []string
	for _, col := range candidates {
		all = append(all, col.Name)
		if s, ok := textValue(values[col.Name]); ok && utf8.RuneCountInString(s) > width {
			over = append(over, col.Name)
		}
	}
	if len(over) > 0 {
		return strings.Join(over, ",")
	}
	sort.Strings(all)
	return strings.Join(all, ",")
}

func textValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case pgtype.Text:
		return x.String, x.Valid
	case fmt.Stringer:
		return x.String(), true
	default:
		return "", false
	}
}
