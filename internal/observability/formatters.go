// Package observability provides formatted terminal output for generation runs.
package observability

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/supervity/company-research/internal/document"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/sections"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI. Progress lines may be printed from
// several workers; Printer serializes them.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func truncate(line string, width int) string {
	if utf8.RuneCountInString(line) <= width {
		return line
	}
	r := []rune(line)
	return string(r[:width-3]) + "..."
}

func pad(line string, width int) string {
	n := utf8.RuneCountInString(line)
	if n >= width {
		return line
	}
	return line + strings.Repeat(" ", width-n)
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(title, inner), inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, inner), inner))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRequest outputs what is about to be generated.
func (p *Printer) PrintRequest(req generation.Request, catalog *sections.Catalog) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:    %s\n", req.TargetCompany))
	sb.WriteString(fmt.Sprintf("Requester:  %s\n", req.RequesterCompany))
	sb.WriteString(fmt.Sprintf("Language:   %s\n", req.Language))
	sb.WriteString(fmt.Sprintf("Model:      %s (temperature %.2f)\n", req.Model.ModelName, req.Model.Temperature))
	sb.WriteString(fmt.Sprintf("Sections:   %d\n", len(req.SectionIDs)))
	for _, id := range req.SectionIDs {
		sb.WriteString(fmt.Sprintf("  • %s\n", titleOf(catalog, id)))
	}
	p.printBox("RESEARCH REQUEST", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProgress prints one line per progress event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(ev generation.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var mark string
	switch ev.Status {
	case generation.ProgressWorking:
		mark = "…"
	case generation.ProgressComplete:
		mark = "✓"
	case generation.ProgressFailed:
		mark = "✗"
	default:
		mark = "·"
	}
	line := fmt.Sprintf("%s %-40s", mark, ev.Title)
	if ev.Result != nil && ev.Status != generation.ProgressWorking {
		r := ev.Result
		if r.Succeeded() {
			line += fmt.Sprintf(" %6.1fs  in %d / out %d tokens", r.ElapsedSeconds, r.InputTokens, r.OutputTokens)
		} else {
			line += fmt.Sprintf(" %6.1fs  %s", r.ElapsedSeconds, r.Error)
		}
	} else if ev.Message != "" {
		line += " " + ev.Message
	}
	fmt.Fprintln(p.out, strings.TrimRight(line, " "))
}

// PrintReport outputs the per-section table and totals of a finished run.
func (p *Printer) PrintReport(report *generation.Report, catalog *sections.Catalog) {
	if report == nil {
		return
	}

	var sb strings.Builder
	for _, r := range report.Ordered() {
		status := "ok"
		if !r.Succeeded() {
			status = string(r.Error)
		}
		sb.WriteString(fmt.Sprintf("%-28s %-15s %6.1fs %7d\n",
			truncate(titleOf(catalog, r.ID), 28), status, r.ElapsedSeconds, r.InputTokens+r.OutputTokens))
	}
	if len(report.NotStarted) > 0 {
		sb.WriteString("\nNot started:\n")
		count := min(len(report.NotStarted), maxItemsToShow)
		for _, id := range report.NotStarted[:count] {
			sb.WriteString(fmt.Sprintf("  • %s\n", titleOf(catalog, id)))
		}
		if len(report.NotStarted) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.NotStarted)-maxItemsToShow))
		}
	}

	ok, failed := report.Counts()
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Status:       %s", report.OverallStatus))
	if report.Interrupted {
		sb.WriteString(" (interrupted)")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Sections:     %d succeeded, %d failed\n", ok, failed))
	sb.WriteString(fmt.Sprintf("Tokens:       in %d / out %d / total %d\n",
		report.TotalInputTokens, report.TotalOutputTokens, report.TotalInputTokens+report.TotalOutputTokens))
	sb.WriteString(fmt.Sprintf("Wall clock:   %.1fs", report.WallClockSeconds))

	p.printBox("GENERATION REPORT", sb.String())
}

// PrintBuild outputs the files written by the document builder.
func (p *Printer) PrintBuild(res *document.BuildResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("HTML:     %s\n", res.HTMLPath))
	switch {
	case res.PDFPath != "":
		sb.WriteString(fmt.Sprintf("PDF:      %s\n", res.PDFPath))
	case res.RenderErr != nil:
		sb.WriteString(fmt.Sprintf("PDF:      failed (%v)\n", res.RenderErr))
	}
	sb.WriteString(fmt.Sprintf("Included: %d sections\n", len(res.Included)))
	if len(res.Skipped) > 0 {
		sb.WriteString(fmt.Sprintf("Skipped:  %s\n", strings.Join(res.Skipped, ", ")))
	}
	fixes := 0
	for _, issues := range res.Issues {
		fixes += len(issues)
	}
	if fixes > 0 {
		sb.WriteString(fmt.Sprintf("Markdown: %d issues repaired\n", fixes))
	}
	p.printBox("REPORT DOCUMENT", strings.TrimSuffix(sb.String(), "\n"))
}

// Notice prints a single line outside any box.
func (p *Printer) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, msg) //nolint:errcheck
}

// PrintSections lists the catalog and the supported languages.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSections(catalog *sections.Catalog) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, "Sections:")
	for i, s := range catalog.Specs() {
		fmt.Fprintf(p.out, "  %2d. %-24s %s\n", i+1, s.ID, s.Title)
	}
	fmt.Fprintln(p.out, "\nLanguages:")
	for i, l := range sections.Languages() {
		fmt.Fprintf(p.out, "  %2d. %s\n", i+1, l)
	}
}

func titleOf(catalog *sections.Catalog, id string) string {
	if catalog == nil {
		return id
	}
	return catalog.Title(id)
}
