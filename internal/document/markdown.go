package document

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithXHTML()),
	)

	headingRe      = regexp.MustCompile(`^(#{2,3})\s+(.*?)\s*#*\s*$`)
	leadingNumRe   = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+`)
	sourcesHeading = regexp.MustCompile(`(?i)^#{2,3}\s+sources\s*:?\s*$`)
)

// toHTML converts markdown to an HTML fragment (GFM tables, strikethrough, autolinks).
func toHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

// splitSources separates the trailing "## Sources" block from the body.
func splitSources(markdown string) (body, sources string) {
	lines := strings.Split(markdown, "\n")
	inCode := false
	idx := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			continue
		}
		if !inCode && sourcesHeading.MatchString(strings.TrimSpace(line)) {
			idx = i
		}
	}
	if idx < 0 {
		return markdown, ""
	}
	body = strings.TrimRight(strings.Join(lines[:idx], "\n"), "\n") + "\n"
	sources = strings.TrimSpace(strings.Join(lines[idx+1:], "\n"))
	return body, sources
}

// numberHeadings prefixes level-2 headings with "N.k" and level-3 headings with
// "N.k.m" for section number N, replacing any numbering the text already had.
// Level-1 headings are dropped: the section cover carries the title.
func numberHeadings(markdown string, section int) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	inCode := false
	h2, h3 := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inCode = !inCode
			out = append(out, line)
			continue
		}
		if inCode {
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(line, "# ") {
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}
		title := leadingNumRe.ReplaceAllString(m[2], "")
		if len(m[1]) == 2 {
			h2++
			h3 = 0
			out = append(out, fmt.Sprintf("## %d.%d %s", section, h2, title))
		} else {
			h3++
			if h2 == 0 {
				out = append(out, fmt.Sprintf("### %d.%d %s", section, h3, title))
			} else {
				out = append(out, fmt.Sprintf("### %d.%d.%d %s", section, h2, h3, title))
			}
		}
	}
	return strings.Join(out, "\n")
}

// sectionHTML renders one section's markdown with its sources block styled separately.
func sectionHTML(markdown string, number int) (string, error) {
	body, sources := splitSources(markdown)
	if number > 0 {
		body = numberHeadings(body, number)
	}
	html, err := toHTML(body)
	if err != nil {
		return "", err
	}
	if sources == "" {
		return html, nil
	}
	srcHTML, err := toHTML(sources)
	if err != nil {
		return "", err
	}
	return html + `<div class="sources"><p class="sources-title">Sources</p>` + srcHTML + "</div>\n", nil
}
