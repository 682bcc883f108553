package db

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, company, requester, language, section_ids, model, status, overall_status,
	input_tokens, output_tokens, report, error_message, created_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Company, &r.Requester, &r.Language, &r.SectionIDs, &r.Model,
		&r.Status, &r.OverallStatus, &r.InputTokens, &r.OutputTokens, &r.Report,
		&r.ErrorMessage, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRun inserts a run in the running state.
func (db *DB) CreateRun(ctx context.Context, in RunInput) (*Run, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("failed to create run: empty id")
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO research_runs (id, company, requester, language, section_ids, model, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+runColumns,
		in.ID, in.Company, in.Requester, in.Language, in.SectionIDs, in.Model, RunStatusRunning,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun records the outcome of a run.
func (db *DB) CompleteRun(ctx context.Context, id string, res RunResult) error {
	var report any
	if len(res.Report) > 0 {
		report = res.Report
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE research_runs
		 SET status = $1, overall_status = $2, input_tokens = $3, output_tokens = $4,
		     report = $5, error_message = $6, completed_at = NOW()
		 WHERE id = $7`,
		res.Status, nullIfEmpty(res.OverallStatus), res.InputTokens, res.OutputTokens,
		report, nullIfEmpty(res.ErrorMessage), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to complete run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns a run by id, or ErrNotFound.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM research_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// listRunsQuery builds the filtered, newest-first run listing.
func listRunsQuery(f RunFilter) (string, []any, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := psql.Select(runColumns).From("research_runs")
	if f.Company != "" {
		q = q.Where(sq.ILike{"company": f.Company})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	q = q.OrderBy("created_at DESC").Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q.ToSql()
}

// ListRuns returns runs matching f, newest first.
func (db *DB) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	query, args, err := listRunsQuery(f)
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run. Its generation log rows are kept.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM research_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
