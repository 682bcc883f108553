package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps each section as a markdown file under
// <root>/<company-slug>_<language-slug>/<section_id>.md.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// FileStoreAt returns a FileStore over root without touching the filesystem.
// Write creates directories as it needs them.
func FileStoreAt(root string) *FileStore {
	return &FileStore{root: root}
}

// Dir returns the directory holding one report's sections and artifacts.
func (s *FileStore) Dir(company, language string) string {
	return filepath.Join(s.root, Slug(company)+"_"+Slug(language))
}

// Path returns the file path for key.
func (s *FileStore) Path(key Key) string {
	return filepath.Join(s.Dir(key.Company, key.Language), Slug(key.SectionID)+".md")
}

// Write stores text atomically (temp file + rename).
func (s *FileStore) Write(_ context.Context, key Key, text string) error {
	dir := s.Dir(key.Company, key.Language)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".section-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Read returns the stored text for key.
func (s *FileStore) Read(_ context.Context, key Key) (string, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), nil
}

// List returns the section ids stored for one report, sorted.
func (s *FileStore) List(_ context.Context, company, language string) ([]string, error) {
	return ListDir(s.Dir(company, language))
}

// ListDir returns the section ids (markdown file names) in dir, sorted.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(ids)
	return ids, nil
}
