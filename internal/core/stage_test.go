package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

// fakeSession records commits and rollbacks. Commits listed in failCommits
// (1-based) fail.
type fakeSession struct {
	execs       []string
	commits     int
	rollbacks   int
	failCommits map[int]bool
}

func (s *fakeSession) Exec(_ context.Context, sql string, _ ...any) error {
	s.execs = append(s.execs, sql)
	return nil
}

func (s *fakeSession) Commit(context.Context) error {
	s.commits++
	if s.failCommits[s.commits] {
		return errors.New("disk full")
	}
	return nil
}

func (s *fakeSession) Rollback(context.Context) error {
	s.rollbacks++
	return nil
}

func (s *fakeSession) Close(context.Context) error { return nil }
func (s *fakeSession) Dialect() schema.Dialect     { return schema.SQLite }

var _ store.Session = (*fakeSession)(nil)

// codeStage builds the "code" column and rejects "bad".
func codeStage(mode CommitMode) StageDefinition {
	return StageDefinition{
		Info: StageInfo{Key: "test", Label: "Test", Order: 1, NaturalKey: []string{"code"}},
		Commit: mode,
		Build: func(row source.Row, _ *BuildContext) (any, error) {
			return CleanText(row.Get("code").Value()), nil
		},
		Upsert: func(ctx context.Context, sess store.Session, entity any) error {
			if entity.(string) == "bad" {
				return errors.New("rejected")
			}
			return sess.Exec(ctx, "UPSERT")
		},
	}
}

func codeRows(n int, bad ...int) []PreparedRow {
	isBad := make(map[int]bool)
	for _, b := range bad {
		isBad[b] = true
	}
	records := make([][]string, n)
	for i := range records {
		code := fmt.Sprintf("C%d", i)
		if isBad[i] {
			code = "bad"
		}
		records[i] = []string{code}
	}
	t := source.NewTable("test", []string{"code"}, records, 1)
	rows := make([]PreparedRow, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = PreparedRow{Row: r, Key: r.Get("code").Value()}
	}
	return rows
}

func newRunner(sess store.Session, batch int) *stageRunner {
	return &stageRunner{
		sess:      sess,
		logger:    discardLogger(),
		progress:  noProgress{},
		batchSize: batch,
		bc:        &BuildContext{},
	}
}

// ============================================================================
// Prepare
// ============================================================================

func TestPrepare(t *testing.T) {
	tbl := source.NewTable("t", []string{"Code", "Name"}, [][]string{
		{"A", "first"},
		{"  ", "dropped"},
		{" A ", "duplicate"},
		{"B", "second"},
	}, 1)
	info := StageInfo{Key: "t", NaturalKey: []string{"code"}}
	res := &StageResult{}

	rows, err := Prepare(info, tbl, res)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].Key)
	assert.Equal(t, "first", rows[0].Row.Get("name").Value())
	assert.Equal(t, "B", rows[1].Key)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Duplicates)
}

func TestPrepare_CompositeKeyAndMandatory(t *testing.T) {
	tbl := source.NewTable("t", []string{"a", "b", "c"}, [][]string{
		{"1", "x", "keep"},
		{"1", "y", "keep"},
		{"1", "x", "dup"},
		{"2", "x", ""},
	}, 1)
	info := StageInfo{NaturalKey: []string{"a", "b"}, Mandatory: []string{"a", "b", "c"}}
	res := &StageResult{}

	rows, err := Prepare(info, tbl, res)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1/x", rows[0].Key)
	assert.Equal(t, "1/y", rows[1].Key)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Dropped)
}

func TestPrepare_MissingColumns(t *testing.T) {
	tbl := source.NewTable("t", []string{"a"}, [][]string{{"1"}}, 1)
	info := StageInfo{NaturalKey: []string{"a"}, Mandatory: []string{"a", "b", "c"}}

	_, err := Prepare(info, tbl, &StageResult{})
	require.Error(t, err)
	assert.Equal(t, "missing required columns: b, c", err.Error())
	assert.Equal(t, "SRC002", MapError(err).Code)
}

// ============================================================================
// Commit policies
// ============================================================================

func TestStageRunner_BatchCommits(t *testing.T) {
	sess := &fakeSession{}
	def := codeStage(CommitEveryN)
	res := newStageResult(def)

	pending, err := newRunner(sess, 500).run(context.Background(), def, codeRows(1200, 700), res)
	require.NoError(t, err)
	assert.Nil(t, pending)

	assert.Equal(t, 1200, res.Attempted)
	assert.Equal(t, 1199, res.Stored)
	assert.Equal(t, 1, res.Failures[Unknown])
	assert.Equal(t, 3, sess.commits) // 500, 1000, end
	assert.Equal(t, 0, sess.rollbacks)
	assert.Contains(t, sess.execs, "ROLLBACK TO SAVEPOINT sp_700")
}

func TestStageRunner_FailedBatchCommitDiscardsPending(t *testing.T) {
	sess := &fakeSession{failCommits: map[int]bool{1: true}}
	def := codeStage(CommitEveryN)
	res := newStageResult(def)

	_, err := newRunner(sess, 500).run(context.Background(), def, codeRows(600), res)
	require.NoError(t, err)

	assert.Equal(t, 100, res.Stored)
	assert.Equal(t, 500, res.Failures[Unknown])
	assert.Equal(t, 1, sess.rollbacks)
}

func TestStageRunner_FailedStageCommit(t *testing.T) {
	sess := &fakeSession{failCommits: map[int]bool{1: true}}
	def := codeStage(CommitOnStageEnd)
	res := newStageResult(def)

	_, err := newRunner(sess, 500).run(context.Background(), def, codeRows(3), res)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageCommit, se.Kind)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 3, res.Failures[Unknown])
}

func TestStageRunner_EachRow(t *testing.T) {
	sess := &fakeSession{}
	def := codeStage(CommitEachRow)
	res := newStageResult(def)

	_, err := newRunner(sess, 500).run(context.Background(), def, codeRows(5, 2), res)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Stored)
	assert.Equal(t, 4, sess.commits)
	assert.Equal(t, 1, sess.rollbacks)
	assert.NotContains(t, sess.execs, "ROLLBACK TO SAVEPOINT sp_2")
}

func TestStageRunner_DeferredReturnsPending(t *testing.T) {
	sess := &fakeSession{}
	def := codeStage(CommitDeferred)
	res := newStageResult(def)
	runner := newRunner(sess, 500)

	pending, err := runner.run(context.Background(), def, codeRows(4, 1), res)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	assert.Equal(t, 0, sess.commits)

	runner.discard(context.Background(), def, pending, errors.New("phase commit failed"), res)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 4, res.Failures[Unknown])
}

func TestStageRunner_Cancelled(t *testing.T) {
	sess := &fakeSession{}
	def := codeStage(CommitEveryN)
	res := newStageResult(def)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(sess, 500).run(ctx, def, codeRows(10), res)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSession, se.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Attempted)
}

func TestBuildContext_FamilyIDForCode(t *testing.T) {
	tbl := source.NewTable("metadata", []string{"mention", "id_mention"}, [][]string{
		{"INFO", "M1"},
		{"INFO", "M9"},
		{"MATH", ""},
		{"PHYS", "M2"},
	}, 1)
	bc := &BuildContext{Table: tbl}

	id, ok := bc.FamilyIDForCode("INFO")
	assert.True(t, ok)
	assert.Equal(t, "M1", id)

	id, ok = bc.FamilyIDForCode("PHYS")
	assert.True(t, ok)
	assert.Equal(t, "M2", id)

	_, ok = bc.FamilyIDForCode("MATH")
	assert.False(t, ok)
	_, ok = bc.FamilyIDForCode("")
	assert.False(t, ok)
}
