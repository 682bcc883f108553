package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var separatorCell = regexp.MustCompile(`^:?-{1,}:?$`)

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "|") && strings.Count(t, "|") >= 2
}

// splitCells splits a table row into trimmed cells, honoring escaped pipes.
func splitCells(line string) []string {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "|")
	if strings.HasSuffix(t, "|") && !strings.HasSuffix(t, `\|`) {
		t = strings.TrimSuffix(t, "|")
	}

	var cells []string
	var cur strings.Builder
	for i := 0; i < len(t); i++ {
		if t[i] == '\\' && i+1 < len(t) && t[i+1] == '|' {
			cur.WriteString(`\|`)
			i++
			continue
		}
		if t[i] == '|' {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(t[i])
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func isSeparatorRow(line string) bool {
	if !isTableRow(line) {
		return false
	}
	for _, c := range splitCells(line) {
		if !separatorCell.MatchString(c) {
			return false
		}
	}
	return true
}

func joinCells(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func separatorFor(cols int) string {
	cells := make([]string, cols)
	for i := range cells {
		cells[i] = "---"
	}
	return joinCells(cells)
}

// fitCells pads or truncates cells to cols entries.
func fitCells(cells []string, cols int) []string {
	if len(cells) > cols {
		return cells[:cols]
	}
	for len(cells) < cols {
		cells = append(cells, "")
	}
	return cells
}

// repairTables adds missing separator rows and makes every row match the header's
// column count. Tables inside code blocks are left alone.
func repairTables(lines []string) ([]string, []Issue) {
	inCode := codeLines(lines)
	out := make([]string, 0, len(lines)+2)
	var issues []Issue

	for i := 0; i < len(lines); {
		if inCode[i] || !isTableRow(lines[i]) {
			out = append(out, lines[i])
			i++
			continue
		}

		start := i
		for i < len(lines) && !inCode[i] && isTableRow(lines[i]) {
			i++
		}
		block := lines[start:i]

		header := splitCells(block[0])
		cols := len(header)
		out = append(out, block[0])

		rows := block[1:]
		if len(rows) > 0 && isSeparatorRow(rows[0]) {
			sep := splitCells(rows[0])
			if len(sep) != cols {
				issues = append(issues, Issue{
					Line:    start + 2,
					Kind:    IssueTableColumns,
					Message: fmt.Sprintf("separator has %d columns, header has %d", len(sep), cols),
					Fixed:   true,
				})
				out = append(out, separatorFor(cols))
			} else {
				out = append(out, rows[0])
			}
			rows = rows[1:]
		} else {
			issues = append(issues, Issue{
				Line:    start + 1,
				Kind:    IssueMissingSeparator,
				Message: "table header is not followed by a separator row",
				Fixed:   true,
			})
			out = append(out, separatorFor(cols))
		}

		firstRow := i - len(rows)
		for j, row := range rows {
			cells := splitCells(row)
			if len(cells) == cols {
				out = append(out, row)
				continue
			}
			issues = append(issues, Issue{
				Line:    firstRow + j + 1,
				Kind:    IssueTableColumns,
				Message: fmt.Sprintf("row has %d columns, header has %d", len(cells), cols),
				Fixed:   true,
			})
			out = append(out, joinCells(fitCells(cells, cols)))
		}
	}
	return out, issues
}
