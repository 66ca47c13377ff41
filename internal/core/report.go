package core

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Run statuses, stored in import_runs.status.
const (
	StatusCompleted   = "completed"
	StatusPartial     = "partial"
	StatusAborted     = "aborted"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Summary is the outcome of a run or a check.
type Summary struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Stages       []*StageResult
	ErrorLogPath string
	LoggedRows   int
	DryRun       bool
	Aborted      bool // a critical stage stopped its phase
	Interrupted  bool
	Err          error // fatal error, if any
}

// Stage returns the result of a stage by key.
func (s *Summary) Stage(key string) *StageResult {
	for _, r := range s.Stages {
		if r.Stage == key {
			return r
		}
	}
	return nil
}

// Stored returns the rows stored across all stages.
func (s *Summary) Stored() int {
	n := 0
	for _, r := range s.Stages {
		n += r.Stored
	}
	return n
}

// Failed returns the rows rejected across all stages.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Stages {
		n += r.Failed()
	}
	return n
}

// ByKind totals the failures per bucket.
func (s *Summary) ByKind() map[FailureKind]int {
	out := make(map[FailureKind]int)
	for _, r := range s.Stages {
		for k, n := range r.Failures {
			out[k] += n
		}
	}
	return out
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Status summarizes the run in one word.
func (s *Summary) Status() string {
	switch {
	case s.Err != nil:
		return StatusFailed
	case s.Interrupted:
		return StatusInterrupted
	case s.Aborted:
		return StatusAborted
	}
	for _, r := range s.Stages {
		if r.Err != nil || r.Failed() > 0 {
			return StatusPartial
		}
	}
	return StatusCompleted
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Render writes the summary table, the failure hints and the error log location.
func (s *Summary) Render(w io.Writer) {
	title := "Import run " + s.RunID
	if s.DryRun {
		title = "Source check"
	}
	fmt.Fprintf(w, "%s  %s  %s\n\n", titleStyle.Render(title), statusStyle(s.Status()).Render(s.Status()),
		dimStyle.Render(s.Duration().Round(time.Millisecond).String()))

	stored := "STORED"
	if s.DryRun {
		stored = "VALID"
	}
	headers := []string{"STAGE", "ROWS", "DUPLICATES", "DROPPED", stored, "FK", "UNIQUE", "DATA", "OTHER", "STATUS"}

	var rows [][]string
	var total StageResult
	total.Failures = make(map[FailureKind]int)
	for _, r := range s.Stages {
		rows = append(rows, stageRow(r.Label, r, r.Status()))
		total.Loaded += r.Loaded
		total.Duplicates += r.Duplicates
		total.Dropped += r.Dropped
		total.Stored += r.Stored
		for k, n := range r.Failures {
			total.Failures[k] += n
		}
	}
	rows = append(rows, stageRow("Total", &total, ""))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col > 0 && col < len(headers)-1 {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())

	for _, r := range s.Stages {
		if r.Err != nil {
			fmt.Fprintf(w, "%s %s: %s\n", errStyle.Render("!"), r.Label, FormatUserError(r.Err))
		}
	}

	byKind := s.ByKind()
	for _, k := range FailureKinds {
		if byKind[k] == 0 {
			continue
		}
		hint := Classification{Kind: k}.Hint()
		fmt.Fprintf(w, "%s %-26s %6d  %s (Code: %s). %s\n", warnStyle.Render("-"), k, byKind[k], hint.Message, hint.Code, hint.Action)
	}
	for _, sub := range s.subcases() {
		hint := Classification{Kind: UniqueConstraintViolation, Subcase: sub.name}.Hint()
		fmt.Fprintf(w, "  %-26s %6d  %s (Code: %s). %s\n", sub.name, sub.count, hint.Message, hint.Code, hint.Action)
	}

	if s.ErrorLogPath != "" && s.LoggedRows > 0 {
		fmt.Fprintf(w, "\nDetails: %s (%d rows logged)\n", s.ErrorLogPath, s.LoggedRows)
	}
}

func stageRow(label string, r *StageResult, status string) []string {
	return []string{
		label,
		strconv.Itoa(r.Loaded),
		strconv.Itoa(r.Duplicates),
		strconv.Itoa(r.Dropped),
		strconv.Itoa(r.Stored),
		strconv.Itoa(r.Failures[ForeignKeyViolation]),
		strconv.Itoa(r.Failures[UniqueConstraintViolation]),
		strconv.Itoa(r.Failures[DataTruncationOrTypeError]),
		strconv.Itoa(r.Failures[Unknown]),
		status,
	}
}

type subcaseCount struct {
	name  string
	count int
}

func (s *Summary) subcases() []subcaseCount {
	counts := make(map[string]int)
	for _, r := range s.Stages {
		for name, n := range r.Subcases {
			counts[name] += n
		}
	}
	out := make([]subcaseCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, subcaseCount{name, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case StatusCompleted:
		return successStyle
	case StatusPartial:
		return warnStyle
	default:
		return errStyle
	}
}
