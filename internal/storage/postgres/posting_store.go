package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// ListKeywords returns every keyword ordered by search id together with
// whether postings already exist for its text.
func (s *Store) ListKeywords(ctx context.Context) ([]crawler.KeywordRow, error) {
	query := fmt.Sprintf(`
SELECT q.search_id, q.search_query,
	EXISTS (SELECT 1 FROM %s h WHERE h.search_query = q.search_query) AS has_postings
FROM %s q
ORDER BY q.search_id`, s.table(PostingTable), s.table(KeywordTable))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var out []crawler.KeywordRow
	for rows.Next() {
		var row crawler.KeywordRow
		if err := rows.Scan(&row.SearchID, &row.Text, &row.HasPostings); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return out, nil
}

// SavePostings inserts the postings of one keyword in a single transaction.
// With job-code dedupe enabled, postings whose code is already stored are
// skipped and not counted.
func (s *Store) SavePostings(ctx context.Context, _ crawler.SearchKeyword, postings []crawler.JobPosting) (int, error) {
	if len(postings) == 0 {
		return 0, nil
	}
	query := s.insertPostingSQL()
	written := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for i, p := range postings {
			tag, err := tx.Exec(ctx, query, postingArgs(p)...)
			if err != nil {
				return fmt.Errorf("insert posting %d: %w", i, err)
			}
			written += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// SaveRunLog appends the run log row.
func (s *Store) SaveRunLog(ctx context.Context, entry crawler.RunLogEntry) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, time_start, time_end, date_run, status)
VALUES ($1, $2, $3, $4, $5)`, s.table(RunLogTable))
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			entry.RunID,
			entry.Start,
			entry.End,
			entry.RunDate,
			string(entry.Status),
		); err != nil {
			return fmt.Errorf("insert run log: %w", err)
		}
		return nil
	})
}

func (s *Store) insertPostingSQL() string {
	table := s.table(PostingTable)
	columns := `search_id, search_query, search_location, job_code, job_title, job_summary,
	job_url, company_name, company_location, company_url, date_job, date_scrape`
	if !s.dedupe {
		return fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, table, columns)
	}
	return fmt.Sprintf(`
INSERT INTO %s (%s)
SELECT $1::integer, $2::text, $3::text, $4::text, $5::text, $6::text,
	$7::text, $8::text, $9::text, $10::text, $11::text, $12::date
WHERE NOT EXISTS (SELECT 1 FROM %s WHERE job_code = $4::text)`, table, columns, table)
}

func postingArgs(p crawler.JobPosting) []any {
	return []any{
		p.SearchID,
		p.SearchQuery,
		p.SearchLocation,
		p.JobCode,
		p.JobTitle,
		p.JobSummary,
		p.JobURL,
		p.CompanyName,
		p.CompanyLocation,
		p.CompanyURL,
		p.JobDate,
		p.ScrapeDate,
	}
}
