package validation

import (
	"fmt"
	"os"
	"strings"
)

// IssueKind names a markdown defect.
type IssueKind string

// Defects the validator detects.
const (
	IssueUnclosedFence    IssueKind = "unclosed_code_fence"
	IssueEmptyLink        IssueKind = "empty_link"
	IssueTableColumns     IssueKind = "table_column_mismatch"
	IssueMissingSeparator IssueKind = "table_missing_separator"
)

// Issue is one defect found in a section. Line is 1-based in the original text.
type Issue struct {
	Line    int       `json:"line"`
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
	Fixed   bool      `json:"fixed"`
}

func (i Issue) String() string {
	state := "unfixed"
	if i.Fixed {
		state = "fixed"
	}
	return fmt.Sprintf("line %d: %s: %s (%s)", i.Line, i.Kind, i.Message, state)
}

// Result holds the repaired markdown and what was changed.
type Result struct {
	Content string
	Issues  []Issue
}

// Changed reports whether any fix was applied.
func (r *Result) Changed() bool {
	for _, i := range r.Issues {
		if i.Fixed {
			return true
		}
	}
	return false
}

// ValidateMarkdown checks content and returns it with every fixable defect repaired.
// Fixes run in an order that keeps earlier line numbers stable: fences are closed at
// the end of the text, empty links are edited in place, table separators are inserted last.
func ValidateMarkdown(content string) *Result {
	res := &Result{Content: content}

	lines := splitLines(res.Content)
	lines, issues := closeFences(lines)
	res.Issues = append(res.Issues, issues...)

	lines, issues = removeEmptyLinks(lines)
	res.Issues = append(res.Issues, issues...)

	lines, issues = repairTables(lines)
	res.Issues = append(res.Issues, issues...)

	res.Content = strings.Join(lines, "\n")
	return res
}

// ValidateFile reads a markdown file and validates it.
func ValidateFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Cause: err}
	}
	return ValidateMarkdown(string(data)), nil
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// fenceMarker returns the fence run ("```" or "~~~"...) opening or closing a code block, or "".
func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == ch {
			n++
		}
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

// codeLines marks the lines that are inside (or delimit) fenced code blocks.
func codeLines(lines []string) []bool {
	inCode := make([]bool, len(lines))
	open := ""
	for i, line := range lines {
		m := fenceMarker(line)
		switch {
		case open == "" && m != "":
			open = m
			inCode[i] = true
		case open != "":
			inCode[i] = true
			if m != "" && m[0] == open[0] && len(m) >= len(open) &&
				strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), string(m[0]))) == "" {
				open = ""
			}
		}
	}
	return inCode
}
