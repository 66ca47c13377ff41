package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/petermich29/uf-database/internal/logging"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

// ContextCheckInterval is how often, in rows, a stage checks for cancellation.
var ContextCheckInterval = 100

// keySeparator joins composite natural keys.
const keySeparator = "/"

// Prepare selects the rows a stage will attempt, in source order: rows with
// an empty mandatory column are dropped and later duplicates of a natural
// key are skipped. Returns an error when a key column is absent from the
// table.
func Prepare(info StageInfo, t *source.Table, res *StageResult) ([]PreparedRow, error) {
	required := append([]string(nil), info.NaturalKey...)
	for _, c := range info.MandatoryColumns() {
		if !contains(required, c) {
			required = append(required, c)
		}
	}
	if missing := t.Missing(required...); len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	mandatory := info.MandatoryColumns()
	seen := make(map[string]struct{}, len(t.Rows))
	rows := make([]PreparedRow, 0, len(t.Rows))

	for _, row := range t.Rows {
		if hasEmpty(row, mandatory) {
			res.Dropped++
			continue
		}

		parts := make([]string, len(info.NaturalKey))
		for i, c := range info.NaturalKey {
			parts[i] = CleanText(row.Get(c).Value())
		}
		key := strings.Join(parts, keySeparator)
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, PreparedRow{Row: row, Key: key})
	}
	return rows, nil
}

func hasEmpty(row source.Row, cols []string) bool {
	for _, c := range cols {
		if CleanText(row.Get(c).Value()) == "" {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// stageRunner attempts prepared rows against one session.
type stageRunner struct {
	sess      store.Session
	errlog    *logging.ErrorLog
	logger    *slog.Logger
	progress  Progress
	batchSize int
	bc        *BuildContext
}

// run attempts every row. Each row is isolated by a savepoint so a rejected
// row never undoes the others; commit boundaries follow def.Commit. It
// returns the stored rows still uncommitted (CommitDeferred only). A non-nil
// error means the stage could not continue (session lost, interrupted, or a
// failed final commit) and is always a *StageError.
func (r *stageRunner) run(ctx context.Context, def StageDefinition, rows []PreparedRow, res *StageResult) ([]PreparedRow, error) {
	logger := logging.FromContext(ctx, r.logger).With("stage", def.Info.Key)
	var pending []PreparedRow // stored, not yet committed

	r.progress.Start(def.Info.Label, len(rows))
	defer r.progress.Done()

	for i, pr := range rows {
		// Check for cancellation periodically
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				r.discard(ctx, def, pending, err, res)
				return nil, &StageError{Stage: def.Info.Key, Kind: StageSession, Err: err}
			}
		}

		res.Attempted++
		stored, err := r.attempt(ctx, def, i, pr, res)
		if err != nil {
			r.discard(ctx, def, pending, err, res)
			return nil, &StageError{Stage: def.Info.Key, Kind: StageSession, Err: err}
		}
		r.progress.Advance()

		if stored {
			pending = append(pending, pr)
		}

		switch def.Commit {
		case CommitEachRow:
			if stored {
				_ = r.commit(ctx, def, pending, res)
				pending = pending[:0]
			}
		case CommitEveryN:
			if r.batchSize > 0 && (i+1)%r.batchSize == 0 {
				if r.commit(ctx, def, pending, res) == nil {
					logger.Debug("batch committed", "rows", i+1)
				}
				pending = pending[:0]
			}
		}
	}

	switch def.Commit {
	case CommitDeferred:
		return pending, nil
	case CommitOnStageEnd, CommitEveryN:
		if err := r.commit(ctx, def, pending, res); err != nil && def.Commit == CommitOnStageEnd {
			return nil, &StageError{Stage: def.Info.Key, Kind: StageCommit, Err: err}
		}
	}
	return nil, nil
}

// attempt builds and upserts one row inside a savepoint. It reports whether
// the row was stored; an error means the session itself failed.
func (r *stageRunner) attempt(ctx context.Context, def StageDefinition, i int, pr PreparedRow, res *StageResult) (bool, error) {
	entity, err := def.Build(pr.Row, r.bc)
	if err != nil {
		r.reject(ctx, def, pr, err, res)
		return false, nil
	}

	// Use savepoint for each upsert
	savepointName := fmt.Sprintf("sp_%d", i)
	if err := r.sess.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
		return false, fmt.Errorf("create savepoint: %w", err)
	}

	if err := def.Upsert(ctx, r.sess, entity); err != nil {
		if def.Commit == CommitEachRow {
			if rbErr := r.sess.Rollback(ctx); rbErr != nil {
				return false, fmt.Errorf("rollback: %w", rbErr)
			}
		} else {
			if rbErr := r.sess.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
				return false, fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			_ = r.sess.Exec(ctx, "RELEASE SAVEPOINT "+savepointName)
		}
		r.reject(ctx, def, pr, err, res)
		return false, nil
	}

	// Release savepoint
	if err := r.sess.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return false, fmt.Errorf("release savepoint: %w", err)
	}
	res.Stored++
	return true, nil
}

// commit commits the open transaction. On failure the pending rows are
// rolled back, logged as Unknown and removed from the stored count.
func (r *stageRunner) commit(ctx context.Context, def StageDefinition, pending []PreparedRow, res *StageResult) error {
	if err := r.sess.Commit(ctx); err != nil {
		r.discard(ctx, def, pending, fmt.Errorf("commit failed: %w", err), res)
		return err
	}
	return nil
}

// discard rolls back the open transaction and accounts for the rows it held.
func (r *stageRunner) discard(ctx context.Context, def StageDefinition, pending []PreparedRow, cause error, res *StageResult) {
	_ = r.sess.Rollback(context.WithoutCancel(ctx))
	for _, p := range pending {
		res.Stored--
		res.Failures[Unknown]++
		r.errlog.Record(ctx, logging.RowFailure{
			Stage:  def.Info.Key,
			Key:    p.Key,
			Class:  string(Unknown),
			Detail: cause.Error(),
			Row:    p.Row.Index,
			Line:   p.Row.Line,
		})
	}
	if len(pending) > 0 {
		logging.FromContext(ctx, r.logger).Warn("rows rolled back",
			"stage", def.Info.Key, "rows", len(pending), "error", cause)
	}
}

// reject classifies and logs a row failure.
func (r *stageRunner) reject(ctx context.Context, def StageDefinition, pr PreparedRow, err error, res *StageResult) {
	c := Classify(err)
	res.Failures[c.Kind]++
	if c.Subcase != "" {
		res.Subcases[c.Subcase]++
	}

	var extra []slog.Attr
	if c.Subcase != "" {
		extra = append(extra, slog.String("subcase", c.Subcase))
	}
	if c.SuspectField != "" {
		extra = append(extra, slog.String("field", c.SuspectField))
	}
	if c.Constraint != "" {
		extra = append(extra, slog.String("constraint", c.Constraint))
	}
	if c.Code != "" {
		extra = append(extra, slog.String("code", c.Code))
	}

	r.errlog.Record(ctx, logging.RowFailure{
		Stage:  def.Info.Key,
		Key:    pr.Key,
		Class:  string(c.Kind),
		Detail: c.Detail,
		Row:    pr.Row.Index,
		Line:   pr.Row.Line,
		Extra:  extra,
	})
	logging.FromContext(ctx, r.logger).Debug("row rejected",
		"stage", def.Info.Key, "key", pr.Key, "class", c.Kind, "field", c.SuspectField)
}
