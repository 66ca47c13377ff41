package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/petermich29/uf-database/internal/schema"
)

// sqlitePragmas are applied to every connection through the DSN.
var sqlitePragmas = []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (and creates, if needed) the database file named by opts.URL.
// Accepted forms: a plain path, "sqlite://path", or a "file:" URI.
func OpenSQLite(ctx context.Context, opts Options) (*SQLite, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dsn, path := sqliteDSN(opts.URL)
	if path != "" && opts.CreateIfMissing {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	opts.Logger.Info("connected to database", "name", path)
	return &SQLite{db: db, logger: opts.Logger}, nil
}

// sqliteDSN normalizes the configured URL into a modernc DSN and returns the
// file path it points at ("" for URIs).
func sqliteDSN(url string) (dsn, path string) {
	url = strings.TrimPrefix(url, "sqlite://")
	path = url
	if strings.HasPrefix(url, "file:") {
		path = ""
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	dsn = url
	for _, p := range sqlitePragmas {
		if strings.Contains(dsn, p) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn, path
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	return schema.Migrate(ctx, s.db, schema.SQLite, s.logger)
}

// OpenSession pins one connection and turns on foreign key enforcement for it.
func (s *SQLite) OpenSession(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

func (s *SQLite) Dialect() schema.Dialect { return schema.SQLite }

func (s *SQLite) Close() { s.db.Close() }

type sqliteSession struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (s *sqliteSession) Exec(ctx context.Context, query string, args ...any) error {
	if s.conn == nil {
		return ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
	}
	_, err := s.tx.ExecContext(ctx, query, args...)
	return err
}

func (s *sqliteSession) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

func (s *sqliteSession) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback()
}

func (s *sqliteSession) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.Rollback(ctx)
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	s.conn = nil
	return err
}

func (s *sqliteSession) Dialect() schema.Dialect { return schema.SQLite }
