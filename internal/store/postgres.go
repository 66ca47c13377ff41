package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/petermich29/uf-database/internal/schema"
)

// maintenanceDB is the database used to create the target database.
const maintenanceDB = "postgres"

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres parses the URL, optionally creates the target database, then
// connects and verifies the pool.
func OpenPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}

	if opts.CreateIfMissing {
		if err := EnsureDatabase(ctx, poolConfig.ConnConfig, opts.Logger); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	opts.Logger.Info("connected to database", "name", poolConfig.ConnConfig.Database)
	return &Postgres{pool: pool, logger: opts.Logger}, nil
}

// EnsureDatabase creates the database named in cfg when it does not exist,
// connecting through the maintenance database.
func EnsureDatabase(ctx context.Context, cfg *pgx.ConnConfig, logger *slog.Logger) error {
	name := cfg.Database
	if name == "" || name == maintenanceDB {
		return nil
	}

	admin := cfg.Copy()
	admin.Database = maintenanceDB

	conn, err := pgx.ConnectConfig(ctx, admin)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", maintenanceDB, err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %q: %w", name, err)
	}
	if exists {
		return nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	logger.Info("database created", "name", name)
	return nil
}

// EnsureSchema applies pending migrations through a database/sql handle on the pool.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()
	return schema.Migrate(ctx, db, schema.Postgres, p.logger)
}

// OpenSession acquires a dedicated connection from the pool.
func (p *Postgres) OpenSession(ctx context.Context) (Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgSession{conn: conn}, nil
}

func (p *Postgres) Dialect() schema.Dialect { return schema.Postgres }

func (p *Postgres) Close() { p.pool.Close() }

type pgSession struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

func (s *pgSession) Exec(ctx context.Context, sql string, args ...any) error {
	if s.conn == nil {
		return ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
	}
	_, err := s.tx.Exec(ctx, sql, args...)
	return err
}

func (s *pgSession) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit(ctx)
}

func (s *pgSession) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback(ctx)
}

func (s *pgSession) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.Rollback(ctx)
	s.conn.Release()
	s.conn = nil
	return err
}

func (s *pgSession) Dialect() schema.Dialect { return schema.Postgres }
