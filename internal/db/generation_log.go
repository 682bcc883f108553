package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// LogGeneration appends an analytics row for a finished run.
func (db *DB) LogGeneration(ctx context.Context, e GenerationLogEntry) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO generation_log (run_id, target_company, requester_company, language, sections,
		     total_sections, success, elapsed_seconds, input_tokens, output_tokens, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.RunID, e.TargetCompany, e.RequesterCompany, e.Language, e.Sections,
		e.TotalSections, e.Success, e.ElapsedSeconds, e.InputTokens, e.OutputTokens,
		e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to log generation for run %s: %w", e.RunID, err)
	}
	return nil
}

func generationLogQuery(company string, limit int) (string, []any, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := psql.Select(`id, run_id, target_company, requester_company, language, sections,
		total_sections, success, elapsed_seconds, input_tokens, output_tokens, error_message, created_at`).
		From("generation_log")
	if company != "" {
		q = q.Where(sq.Eq{"target_company": company})
	}
	return q.OrderBy("created_at DESC").Limit(uint64(limit)).ToSql()
}

// GenerationLog returns the newest analytics rows, optionally for one company.
func (db *DB) GenerationLog(ctx context.Context, company string, limit int) ([]GenerationLogEntry, error) {
	query, args, err := generationLogQuery(company, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build generation log query: %w", err)
	}
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation log: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GenerationLogEntry, error) {
		var e GenerationLogEntry
		err := row.Scan(&e.ID, &e.RunID, &e.TargetCompany, &e.RequesterCompany, &e.Language,
			&e.Sections, &e.TotalSections, &e.Success, &e.ElapsedSeconds, &e.InputTokens,
			&e.OutputTokens, &e.ErrorMessage, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read generation log: %w", err)
	}
	return entries, nil
}
