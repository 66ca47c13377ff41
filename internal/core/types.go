package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

// ============================================================================
// Entities
// ============================================================================

// Institution is the top of the organizational hierarchy.
type Institution struct {
	ID          string
	Name        pgtype.Text
	Type        pgtype.Text // public or private
	Description pgtype.Text
}

// OrganizationalUnit is a faculty, school or institute of an institution.
type OrganizationalUnit struct {
	Code          string
	Label         pgtype.Text
	Description   pgtype.Text
	InstitutionID pgtype.Text
}

// Domain is a field of study.
type Domain struct {
	Code        string
	Label       pgtype.Text
	Description pgtype.Text
}

// ProgramFamily groups programs of one unit and domain (a "mention").
type ProgramFamily struct {
	ID          string
	Code        pgtype.Text
	Label       pgtype.Text
	Description pgtype.Text
	UnitCode    pgtype.Text
	DomainCode  pgtype.Text
}

// Program is a study track (a "parcours").
type Program struct {
	ID           string
	Code         pgtype.Text
	Label        pgtype.Text
	Description  pgtype.Text
	FamilyID     pgtype.Text
	CreationYear pgtype.Int4
	EndYear      pgtype.Int4
}

// AcademicYear is identified by its label, e.g. "2023-2024".
type AcademicYear struct {
	Label       string
	Description pgtype.Text
}

// Student holds civil, contact and ID-document fields; only Code is mandatory.
type Student struct {
	Code               string
	RegistrationNumber pgtype.Text
	LastName           pgtype.Text
	FirstNames         pgtype.Text
	Sex                pgtype.Text
	BirthDate          pgtype.Date
	BirthPlace         pgtype.Text
	Nationality        pgtype.Text
	BaccYear           pgtype.Int4
	BaccSeries         pgtype.Text
	BaccCenter         pgtype.Text
	Address            pgtype.Text
	Phone              pgtype.Text
	Email              pgtype.Text
	IDNumber           pgtype.Text
	IDIssueDate        pgtype.Date
	IDIssuePlace       pgtype.Text
}

// Enrollment places a student in a program for one academic year and level.
type Enrollment struct {
	Code        string
	StudentCode string
	YearLabel   string
	ProgramID   string
	Level       string
	TrackType   pgtype.Text
}

// ============================================================================
// Stage definitions
// ============================================================================

// Phase groups stages that share a session and a source family.
type Phase string

const (
	PhaseMetadata   Phase = "metadata"
	PhaseEnrollment Phase = "enrollment"
)

// CommitMode decides where a stage places commit boundaries.
type CommitMode int

const (
	// CommitOnStageEnd commits once after the last row.
	CommitOnStageEnd CommitMode = iota
	// CommitDeferred leaves the transaction open; the phase commits it.
	CommitDeferred
	// CommitEachRow commits (or rolls back) every row on its own.
	CommitEachRow
	// CommitEveryN commits every Options.BatchSize attempted rows and at the end.
	CommitEveryN
)

func (m CommitMode) String() string {
	switch m {
	case CommitOnStageEnd:
		return "stage"
	case CommitDeferred:
		return "deferred"
	case CommitEachRow:
		return "row"
	case CommitEveryN:
		return "batch"
	default:
		return fmt.Sprintf("CommitMode(%d)", int(m))
	}
}

// StageInfo describes a stage.
type StageInfo struct {
	Key    string      // Unique identifier: "student"
	Label  string      // Display name: "Students"
	Order  int         // Position in the pipeline, 1-based
	Phase  Phase       // Session group
	Source source.Kind // Source table read by the stage
	Table  *schema.Table

	// Key columns, in the source, used for deduplication (first occurrence wins).
	NaturalKey []string
	// Mandatory columns; rows with an empty value in any of them are dropped.
	// Defaults to NaturalKey.
	Mandatory []string
	// Critical stages abort the rest of their phase when they cannot run or commit.
	Critical bool
}

// MandatoryColumns returns Mandatory, or NaturalKey when Mandatory is empty.
func (i StageInfo) MandatoryColumns() []string {
	if len(i.Mandatory) > 0 {
		return i.Mandatory
	}
	return i.NaturalKey
}

// BuildFunc normalizes one prepared source row into an entity.
type BuildFunc func(row source.Row, bc *BuildContext) (any, error)

// UpsertFunc merges an entity into the store within the session's open transaction.
type UpsertFunc func(ctx context.Context, sess store.Session, entity any) error

// StageDefinition contains everything needed to run one stage.
type StageDefinition struct {
	Info   StageInfo
	Commit CommitMode
	Build  BuildFunc
	Upsert UpsertFunc
}

// BuildContext carries per-run settings and the table being imported to the
// build functions.
type BuildContext struct {
	DateOrder DateOrder
	Table     *source.Table

	families map[*source.Table]map[string]string
}

// FamilyIDForCode resolves a program family code to the family_id of the
// first metadata row declaring it.
func (bc *BuildContext) FamilyIDForCode(code string) (string, bool) {
	if bc.Table == nil || code == "" {
		return "", false
	}
	if bc.families == nil {
		bc.families = make(map[*source.Table]map[string]string)
	}
	idx, ok := bc.families[bc.Table]
	if !ok {
		idx = make(map[string]string)
		for _, row := range bc.Table.Rows {
			c := CleanText(row.Get("mention").Value())
			id := CleanText(row.Get("id_mention").Value())
			if c == "" || id == "" {
				continue
			}
			if _, seen := idx[c]; !seen {
				idx[c] = id
			}
		}
		bc.families[bc.Table] = idx
	}
	id, ok := idx[code]
	return id, ok
}

// ============================================================================
// Results
// ============================================================================

// PreparedRow is a source row that survived deduplication.
type PreparedRow struct {
	Row source.Row
	Key string // natural key, for logs
}

// StageErrorKind classifies a stage-level failure.
type StageErrorKind string

const (
	StageLoad    StageErrorKind = "load"
	StageColumns StageErrorKind = "columns"
	StageSession StageErrorKind = "session"
	StageCommit  StageErrorKind = "commit"
)

// StageError is a failure that stopped a stage (as opposed to a rejected row).
type StageError struct {
	Stage string
	Kind  StageErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageResult holds the counts of one stage run.
type StageResult struct {
	Stage      string
	Label      string
	Loaded     int // data rows in the source table
	Dropped    int // rows missing a mandatory key
	Duplicates int // later occurrences of a natural key
	Attempted  int
	Stored     int
	Failures   map[FailureKind]int
	Subcases   map[string]int
	Skipped    bool // not run because its phase was aborted or interrupted
	Err        error
	Duration   time.Duration
}

func newStageResult(def StageDefinition) *StageResult {
	return &StageResult{
		Stage:    def.Info.Key,
		Label:    def.Info.Label,
		Failures: make(map[FailureKind]int),
		Subcases: make(map[string]int),
	}
}

// Failed returns the number of rejected rows.
func (r *StageResult) Failed() int {
	n := 0
	for _, c := range r.Failures {
		n += c
	}
	return n
}

// Status is a one-word summary for reports.
func (r *StageResult) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "failed"
	case r.Failed() > 0:
		return "partial"
	default:
		return "ok"
	}
}
