package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps section texts in a single local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and creates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS section_texts (
		company TEXT NOT NULL,
		language TEXT NOT NULL,
		section_id TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (company, language, section_id)
	)`)
	return err
}

// Write upserts the text for key.
func (s *SQLiteStore) Write(ctx context.Context, key Key, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO section_texts (company, language, section_id, content)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (company, language, section_id)
		 DO UPDATE SET content = excluded.content, updated_at = CURRENT_TIMESTAMP`,
		key.Company, key.Language, key.SectionID, text,
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Read returns the text stored for key.
func (s *SQLiteStore) Read(ctx context.Context, key Key) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM section_texts WHERE company = ? AND language = ? AND section_id = ?`,
		key.Company, key.Language, key.SectionID,
	).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return text, nil
}

// List returns the section ids stored for one report, sorted.
func (s *SQLiteStore) List(ctx context.Context, company, language string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section_id FROM section_texts WHERE company = ? AND language = ? ORDER BY section_id`,
		company, language,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning section id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
