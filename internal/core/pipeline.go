package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petermich29/uf-database/internal/logging"
	"github.com/petermich29/uf-database/internal/schema"
	"github.com/petermich29/uf-database/internal/source"
	"github.com/petermich29/uf-database/internal/store"
)

// DefaultBatchSize is the number of enrollment rows per commit.
const DefaultBatchSize = 500

// Options tunes a run.
type Options struct {
	BatchSize int
	DateOrder DateOrder
}

// Pipeline runs the registered stages against a store.
type Pipeline struct {
	Store    store.Store
	Loader   source.Loader
	ErrorLog *logging.ErrorLog
	Logger   *slog.Logger
	Metrics  *Metrics
	Progress Progress
	Options  Options

	// Stages defaults to every registered stage.
	Stages []StageDefinition
	// RunID defaults to a random UUID.
	RunID string
}

func (p *Pipeline) defaults() {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Progress == nil {
		p.Progress = noProgress{}
	}
	if p.Options.BatchSize <= 0 {
		p.Options.BatchSize = DefaultBatchSize
	}
	if p.Stages == nil {
		p.Stages = All()
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
}

// Run provisions the schema and runs every phase. Row failures never fail
// the run; the returned error is set only when the schema or a session
// cannot be obtained, or when ctx is cancelled. The summary is returned in
// every case.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if p.Store == nil || p.Loader == nil {
		return nil, errors.New("pipeline: store and loader are required")
	}
	p.defaults()

	ctx = logging.WithRunID(ctx, p.RunID)
	logger := logging.FromContext(ctx, p.Logger)
	sum := &Summary{RunID: p.RunID, StartedAt: time.Now(), ErrorLogPath: p.ErrorLog.Path()}

	logger.Info("import started",
		"stages", len(p.Stages),
		"batch_size", p.Options.BatchSize,
		"date_order", p.Options.DateOrder.String(),
		"dialect", p.Store.Dialect())

	if err := p.Store.EnsureSchema(ctx); err != nil {
		sum.Err = fmt.Errorf("ensure schema: %w", err)
		p.finish(ctx, sum)
		return sum, sum.Err
	}

	tables := newTableCache(p.Loader)
	for _, defs := range splitPhases(p.Stages) {
		if err := p.runPhase(ctx, defs, tables, sum); err != nil {
			sum.Err = err
			p.finish(ctx, sum)
			return sum, err
		}
	}

	sum.Interrupted = ctx.Err() != nil
	p.finish(ctx, sum)
	p.recordRun(ctx, sum)

	if sum.Interrupted {
		return sum, ctx.Err()
	}
	return sum, nil
}

func (p *Pipeline) finish(ctx context.Context, sum *Summary) {
	sum.FinishedAt = time.Now()
	sum.LoggedRows = p.ErrorLog.Count()
	p.Metrics.ObserveRun(sum)
	logging.FromContext(ctx, p.Logger).Info("import finished",
		"status", sum.Status(),
		"stored", sum.Stored(),
		"failed", sum.Failed(),
		"duration", sum.Duration().Round(time.Millisecond))
}

// deferredStage is a stage whose rows wait for the phase commit.
type deferredStage struct {
	def     StageDefinition
	res     *StageResult
	pending []PreparedRow
}

// runPhase runs one phase on its own session. A critical stage that fails
// to load or commit skips the rest of the phase. Stages with CommitDeferred
// are committed together once the phase ends.
func (p *Pipeline) runPhase(ctx context.Context, defs []StageDefinition, tables *tableCache, sum *Summary) error {
	if len(defs) == 0 {
		return nil
	}
	phase := defs[0].Info.Phase
	logger := logging.WithFields(ctx, p.Logger, "phase", phase)

	sess, err := p.Store.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("open %s session: %w", phase, err)
	}
	defer sess.Close(context.WithoutCancel(ctx))

	runner := &stageRunner{
		sess:      sess,
		errlog:    p.ErrorLog,
		logger:    p.Logger,
		progress:  p.Progress,
		batchSize: p.Options.BatchSize,
		bc:        &BuildContext{DateOrder: p.Options.DateOrder},
	}

	var results []*StageResult
	var deferred []deferredStage
	aborted := false

	for _, def := range defs {
		res := newStageResult(def)
		sum.Stages = append(sum.Stages, res)
		results = append(results, res)

		if aborted || ctx.Err() != nil {
			res.Skipped = true
			continue
		}

		pending := p.runStage(ctx, runner, def, tables, res)

		var se *StageError
		if errors.As(res.Err, &se) && se.Kind == StageSession && len(deferred) > 0 {
			// The transaction holding the earlier deferred stages is gone.
			p.loseDeferred(ctx, runner, deferred, se.Err)
			deferred = nil
		}
		if def.Commit == CommitDeferred && res.Err == nil {
			deferred = append(deferred, deferredStage{def: def, res: res, pending: pending})
		}

		if res.Err != nil && def.Info.Critical {
			aborted = true
			sum.Aborted = true
			logger.Error("phase aborted", "stage", def.Info.Key, "error", res.Err)
		}
	}

	if len(deferred) > 0 {
		if err := ctx.Err(); err != nil {
			p.loseDeferred(ctx, runner, deferred, err)
		} else if err := sess.Commit(ctx); err != nil {
			p.loseDeferred(ctx, runner, deferred, fmt.Errorf("commit failed: %w", err))
		} else {
			logger.Info("phase committed", "stages", len(deferred))
		}
	}

	for _, res := range results {
		p.Metrics.ObserveStage(res)
	}
	return nil
}

// loseDeferred accounts for deferred rows that will never be committed.
func (p *Pipeline) loseDeferred(ctx context.Context, runner *stageRunner, stages []deferredStage, cause error) {
	for _, d := range stages {
		runner.discard(ctx, d.def, d.pending, cause, d.res)
		if d.res.Err == nil {
			d.res.Err = &StageError{Stage: d.def.Info.Key, Kind: StageCommit, Err: cause}
		}
		p.ErrorLog.StageFailed(ctx, d.def.Info.Key, cause)
	}
}

// runStage loads, prepares and runs one stage. It returns the rows left
// uncommitted by a deferred stage.
func (p *Pipeline) runStage(ctx context.Context, runner *stageRunner, def StageDefinition, tables *tableCache, res *StageResult) []PreparedRow {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()
	logger := logging.WithFields(ctx, p.Logger, "stage", def.Info.Key)

	fail := func(kind StageErrorKind, err error) {
		res.Err = &StageError{Stage: def.Info.Key, Kind: kind, Err: err}
		p.ErrorLog.StageFailed(ctx, def.Info.Key, res.Err)
		logger.Error("stage failed", "kind", kind, "error", err)
	}

	t, err := tables.load(ctx, def.Info.Source)
	if err != nil {
		fail(StageLoad, err)
		return nil
	}
	res.Loaded = t.Len()

	rows, err := Prepare(def.Info, t, res)
	if err != nil {
		fail(StageColumns, err)
		return nil
	}

	runner.bc.Table = t
	pending, err := runner.run(ctx, def, rows, res)
	if err != nil {
		res.Err = err
		p.ErrorLog.StageFailed(ctx, def.Info.Key, err)
		logger.Error("stage failed", "error", err)
	}

	attrs := []any{
		"loaded", res.Loaded,
		"dropped", res.Dropped,
		"duplicates", res.Duplicates,
		"stored", res.Stored,
		"failed", res.Failed(),
	}
	for _, k := range FailureKinds {
		attrs = append(attrs, string(k), res.Failures[k])
	}
	attrs = append(attrs,
		"commit", def.Commit.String(),
		"duration", time.Since(start).Round(time.Millisecond))
	logger.Info("stage finished", attrs...)
	return pending
}

// recordRun stores the run in import_runs. Failures are logged only.
func (p *Pipeline) recordRun(ctx context.Context, sum *Summary) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.FromContext(ctx, p.Logger)

	sess, err := p.Store.OpenSession(ctx)
	if err != nil {
		logger.Warn("record run", "error", err)
		return
	}
	defer sess.Close(ctx)

	err = merge(ctx, sess, schema.ImportRuns, sum.RunID,
		sum.RunID, sum.StartedAt.UTC(), sum.FinishedAt.UTC(), sum.Status(),
		int64(sum.Stored()), int64(sum.Failed()))
	if err == nil {
		err = sess.Commit(ctx)
	}
	if err != nil {
		logger.Warn("record run", "error", err)
	}
}

// Check loads and prepares every stage without touching the store, building
// each entity to report what a run would attempt. Build errors count as
// failures; database constraints are not evaluated.
func (p *Pipeline) Check(ctx context.Context) (*Summary, error) {
	if p.Loader == nil {
		return nil, errors.New("pipeline: loader is required")
	}
	p.defaults()

	sum := &Summary{RunID: p.RunID, StartedAt: time.Now(), DryRun: true}
	tables := newTableCache(p.Loader)
	bc := &BuildContext{DateOrder: p.Options.DateOrder}

	stages := append([]StageDefinition(nil), p.Stages...)
	sortStages(stages)
	for _, def := range stages {
		res := newStageResult(def)
		sum.Stages = append(sum.Stages, res)
		if err := ctx.Err(); err != nil {
			res.Skipped = true
			sum.Interrupted = true
			continue
		}

		t, err := tables.load(ctx, def.Info.Source)
		if err != nil {
			res.Err = &StageError{Stage: def.Info.Key, Kind: StageLoad, Err: err}
			continue
		}
		res.Loaded = t.Len()
		rows, err := Prepare(def.Info, t, res)
		if err != nil {
			res.Err = &StageError{Stage: def.Info.Key, Kind: StageColumns, Err: err}
			continue
		}

		bc.Table = t
		for _, pr := range rows {
			res.Attempted++
			if _, err := def.Build(pr.Row, bc); err != nil {
				res.Failures[Classify(err).Kind]++
				continue
			}
			res.Stored++
		}
	}
	sum.FinishedAt = time.Now()
	return sum, nil
}

// tableCache loads each source once per run, remembering load errors so
// every stage reading a broken source fails the same way.
type tableCache struct {
	loader source.Loader
	tables map[source.Kind]*source.Table
	errs   map[source.Kind]error
}

func newTableCache(l source.Loader) *tableCache {
	return &tableCache{
		loader: l,
		tables: make(map[source.Kind]*source.Table),
		errs:   make(map[source.Kind]error),
	}
}

func (c *tableCache) load(ctx context.Context, kind source.Kind) (*source.Table, error) {
	if t, ok := c.tables[kind]; ok {
		return t, nil
	}
	if err, ok := c.errs[kind]; ok {
		return nil, err
	}
	t, err := c.loader.Load(ctx, kind)
	if err != nil {
		c.errs[kind] = err
		return nil, err
	}
	t.Rename(source.DefaultAliases[kind])
	c.tables[kind] = t
	return t, nil
}
