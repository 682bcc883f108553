// Package storage persists generated section texts keyed by company, language and section.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrNotFound is returned by Read when no text is stored under the key.
var ErrNotFound = errors.New("section text not found")

// Key identifies one stored section text.
type Key struct {
	Company   string
	Language  string
	SectionID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Company, k.Language, k.SectionID)
}

// Store writes and reads back section texts.
type Store interface {
	Write(ctx context.Context, key Key, text string) error
	Read(ctx context.Context, key Key) (string, error)
}

// Lister is implemented by stores that can enumerate the sections of one report.
type Lister interface {
	List(ctx context.Context, company, language string) ([]string, error)
}

// Slug turns a company or language name into a filesystem- and URL-safe token.
// Letters in any script are kept so that e.g. Japanese names stay readable.
func Slug(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case r == '-' || r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_.")
	if out == "" {
		return "unnamed"
	}
	return out
}
