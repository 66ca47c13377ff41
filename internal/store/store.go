// Package store is the storage collaborator of the importer: a transactional
// session over one connection plus schema provisioning. Two engines are
// supported, PostgreSQL through pgx and SQLite through the pure-Go modernc
// driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petermich29/uf-database/internal/schema"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is one connection used sequentially by the import stages.
// A transaction is begun lazily by the first Exec after open, Commit or Rollback.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
	Dialect() schema.Dialect
}

// Store opens sessions and provisions the schema.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
	EnsureSchema(ctx context.Context) error
	Dialect() schema.Dialect
	Close()
}

// Options configures Open.
type Options struct {
	Dialect         schema.Dialect
	URL             string
	CreateIfMissing bool
	MaxConns        int
	ConnectTimeout  time.Duration
	Logger          *slog.Logger
}

// Open connects to the engine selected by opts.Dialect.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	switch opts.Dialect {
	case schema.Postgres:
		return OpenPostgres(ctx, opts)
	case schema.SQLite:
		return OpenSQLite(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", opts.Dialect)
	}
}
