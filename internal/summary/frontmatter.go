package summary

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fmDelimiter = "---"

// FrontMatter is the YAML header of a stored summary.
type FrontMatter struct {
	Title       string   `yaml:"title"`
	Date        string   `yaml:"date"`
	Language    string   `yaml:"language"`
	Type        string   `yaml:"type"`
	Company     string   `yaml:"company"`
	Sections    []string `yaml:"sections,omitempty"`
	GeneratedAt string   `yaml:"generated_at,omitempty"`
}

// splitFrontMatter returns the raw YAML header and the remaining body.
// ok is false when text does not start with a complete header.
func splitFrontMatter(text string) (header, body string, ok bool) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, fmDelimiter+"\n") {
		return "", text, false
	}
	rest := normalized[len(fmDelimiter)+1:]
	end := strings.Index(rest, "\n"+fmDelimiter)
	if end < 0 {
		return "", text, false
	}
	header = rest[:end]
	body = rest[end+len(fmDelimiter)+1:]
	// The closing delimiter must be a line of its own.
	if body != "" && body[0] != '\n' {
		return "", text, false
	}
	return header, strings.TrimLeft(body, "\n"), true
}

// ParseFrontMatter decodes the YAML header of text, if present.
func ParseFrontMatter(text string) (*FrontMatter, string, error) {
	header, body, ok := splitFrontMatter(text)
	if !ok {
		return nil, text, nil
	}
	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, body, fmt.Errorf("invalid front matter: %w", err)
	}
	return &fm, body, nil
}

// StripFrontMatter removes a leading YAML header from text.
func StripFrontMatter(text string) string {
	_, body, _ := splitFrontMatter(text)
	return body
}

// EnsureFrontMatter prepends fm unless text already starts with a header.
func EnsureFrontMatter(text string, fm FrontMatter) (string, error) {
	if _, _, ok := splitFrontMatter(text); ok {
		return text, nil
	}
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal front matter: %w", err)
	}
	return fmDelimiter + "\n" + string(data) + fmDelimiter + "\n\n" + strings.TrimLeft(text, "\n"), nil
}
