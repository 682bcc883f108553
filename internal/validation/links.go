package validation

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// emptyLinkPattern matches [label]() and [label](<>).
var emptyLinkPattern = regexp.MustCompile(`\[([^\[\]]*)\]\(\s*(?:<\s*>)?\s*\)`)

var linkParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// removeEmptyLinks replaces links without a destination by their label. The markdown
// parser decides which lines hold such links, so brackets inside code are untouched.
func removeEmptyLinks(lines []string) ([]string, []Issue) {
	src := []byte(strings.Join(lines, "\n"))
	candidates := emptyLinkLines(src)
	if len(candidates) == 0 {
		return lines, nil
	}

	var issues []Issue
	for _, n := range candidates {
		idx := n - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		line := lines[idx]
		for _, m := range emptyLinkPattern.FindAllStringSubmatch(line, -1) {
			issues = append(issues, Issue{
				Line:    n,
				Kind:    IssueEmptyLink,
				Message: fmt.Sprintf("link %q has no destination", m[1]),
				Fixed:   true,
			})
		}
		lines[idx] = emptyLinkPattern.ReplaceAllString(line, "$1")
	}
	return lines, issues
}

// emptyLinkLines returns the sorted 1-based line numbers of blocks containing a link
// with an empty destination.
func emptyLinkLines(src []byte) []int {
	doc := linkParser.Parse(text.NewReader(src))
	seen := make(map[int]bool)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok || len(bytes.TrimSpace(link.Destination)) > 0 {
			return ast.WalkContinue, nil
		}
		block := enclosingBlock(link)
		if block == nil {
			return ast.WalkContinue, nil
		}
		segs := block.Lines()
		for i := 0; i < segs.Len(); i++ {
			seen[lineOf(src, segs.At(i).Start)] = true
		}
		return ast.WalkSkipChildren, nil
	})

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func enclosingBlock(n ast.Node) ast.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == ast.TypeBlock && p.Lines().Len() > 0 {
			return p
		}
	}
	return nil
}

func lineOf(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}
