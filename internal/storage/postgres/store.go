// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Table names inside the configured schema.
const (
	KeywordTable = "dim_search_query"
	PostingTable = "fct_job_posting_history"
	RunLogTable  = "fct_job_log"

	DefaultSchema = "rpg"
)

// Config controls the Postgres connection pool and write behaviour.
type Config struct {
	DSN             string
	Schema          string
	DedupeJobCode   bool
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// Store persists keywords, postings and run logs.
type Store struct {
	pool   pgxPool
	schema string
	dedupe bool
}

// NewStore connects a pool using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	schema, err := schemaName(cfg.Schema)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, schema: schema, dedupe: cfg.DedupeJobCode}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool pgxPool, schema string, dedupe bool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := schemaName(schema)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, schema: name, dedupe: dedupe}, nil
}

func schemaName(schema string) (string, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if !validTableName.MatchString(schema) {
		return "", fmt.Errorf("invalid schema name %q", schema)
	}
	return schema, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) table(name string) string {
	return s.schema + "." + name
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
