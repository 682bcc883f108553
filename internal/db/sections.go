package db

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/supervity/company-research/internal/storage"
)

// SectionTexts stores generated section markdown in section_texts. It implements
// storage.Store and storage.Lister.
type SectionTexts struct {
	db *DB
}

// SectionTexts returns the section store backed by this database.
func (db *DB) SectionTexts() *SectionTexts {
	return &SectionTexts{db: db}
}

// Write upserts the text for key.
func (s *SectionTexts) Write(ctx context.Context, key storage.Key, text string) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO section_texts (company, language, section_id, content)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company, language, section_id)
		 DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()`,
		key.Company, key.Language, key.SectionID, text,
	)
	if err != nil {
		return fmt.Errorf("failed to save section %s: %w", key, err)
	}
	return nil
}

// Read returns the text for key or storage.ErrNotFound.
func (s *SectionTexts) Read(ctx context.Context, key storage.Key) (string, error) {
	var text string
	err := s.db.pool.QueryRow(ctx,
		`SELECT content FROM section_texts WHERE company = $1 AND language = $2 AND section_id = $3`,
		key.Company, key.Language, key.SectionID,
	).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to get section %s: %w", key, err)
	}
	return text, nil
}

// List returns the stored section ids for a company and language, sorted.
func (s *SectionTexts) List(ctx context.Context, company, language string) ([]string, error) {
	query, args, err := psql.Select("section_id").
		From("section_texts").
		Where(sq.Eq{"company": company, "language": language}).
		OrderBy("section_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build section query: %w", err)
	}
	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	return ids, nil
}
