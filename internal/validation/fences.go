package validation

import "strings"

// closeFences appends a closing fence when the text ends inside a code block.
func closeFences(lines []string) ([]string, []Issue) {
	open := ""
	openLine := 0
	for i, line := range lines {
		m := fenceMarker(line)
		if m == "" {
			continue
		}
		if open == "" {
			open, openLine = m, i+1
			continue
		}
		rest := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), string(m[0])))
		if m[0] == open[0] && len(m) >= len(open) && rest == "" {
			open = ""
		}
	}
	if open == "" {
		return lines, nil
	}

	// Drop trailing blank lines so the fence closes right after the code.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	lines = append(lines, open, "")
	return lines, []Issue{{
		Line:    openLine,
		Kind:    IssueUnclosedFence,
		Message: "code block is never closed",
		Fixed:   true,
	}}
}
