package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RowFailure is one rejected source row.
type RowFailure struct {
	Stage  string
	Key    string
	Class  string
	Detail string
	Row    int // 0-based data row index
	Line   int // 1-based line in the source file
	Extra  []slog.Attr
}

// ErrorLog is the per-run side channel for row-level failures. It is opened
// fresh (truncated) when a run starts and closed when the run ends. A nil
// *ErrorLog discards everything.
type ErrorLog struct {
	path   string
	file   *os.File
	logger *slog.Logger
	count  int
}

// OpenErrorLog creates or truncates the log file at path.
func OpenErrorLog(path string) (*ErrorLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create error log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &ErrorLog{path: path, file: f, logger: slog.New(handler)}, nil
}

// Record writes one line for a rejected row.
func (l *ErrorLog) Record(ctx context.Context, f RowFailure) {
	if l == nil {
		return
	}
	l.count++

	attrs := []slog.Attr{
		slog.String("stage", f.Stage),
		slog.String("key", f.Key),
		slog.String("class", f.Class),
		slog.Int("row", f.Row),
		slog.Int("line", f.Line),
		slog.String("detail", f.Detail),
	}
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	attrs = append(attrs, f.Extra...)
	l.logger.LogAttrs(ctx, slog.LevelError, "row rejected", attrs...)
}

// StageFailed writes one line for a stage that could not run.
func (l *ErrorLog) StageFailed(ctx context.Context, stage string, err error) {
	if l == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("stage", stage),
		slog.String("detail", err.Error()),
	}
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	l.logger.LogAttrs(ctx, slog.LevelError, "stage failed", attrs...)
}

// Count returns the number of rows recorded so far.
func (l *ErrorLog) Count() int {
	if l == nil {
		return 0
	}
	return l.count
}

// Path returns the file path, or "" for a nil log.
func (l *ErrorLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close flushes and closes the file.
func (l *ErrorLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync error log: %w", err)
	}
	return f.Close()
}
