package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var tableDDL = []struct {
	name string
	ddl  string
}{
	{KeywordTable, `CREATE TABLE %s (
	search_id    integer PRIMARY KEY,
	search_query text    NOT NULL
)`},
	{PostingTable, `CREATE TABLE %s (
	search_id        integer,
	search_query     text,
	search_location  text,
	job_code         text,
	job_title        text,
	job_summary      text,
	job_url          text,
	company_name     text,
	company_location text,
	company_url      text,
	date_job         text,
	date_scrape      date
)`},
	{RunLogTable, `CREATE TABLE %s (
	run_id     text,
	time_start timestamptz,
	time_end   timestamptz,
	date_run   date,
	status     text
)`},
}

// EnsureSchema creates the schema and any missing table in one transaction.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s.schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", s.schema, err)
		}
		existing, err := existingTables(ctx, tx, s.schema)
		if err != nil {
			return err
		}
		for _, t := range tableDDL {
			if existing[t.name] {
				continue
			}
			if _, err := tx.Exec(ctx, fmt.Sprintf(t.ddl, s.table(t.name))); err != nil {
				return fmt.Errorf("create table %s: %w", t.name, err)
			}
		}
		return nil
	})
}

func existingTables(ctx context.Context, tx pgx.Tx, schema string) (map[string]bool, error) {
	rows, err := tx.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1`, schema)
	if err != nil {
		return nil, fmt.Errorf("inspect tables: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		out[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return out, nil
}
