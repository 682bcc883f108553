// Package document builds the final report files from stored section texts: it repairs
// and converts each section's markdown, assembles the HTML and renders the PDF.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/assembly"
	"github.com/supervity/company-research/internal/rendering"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
	"github.com/supervity/company-research/internal/summary"
	"github.com/supervity/company-research/internal/validation"
)

// Output file names.
const (
	HTMLFile = "report.html"
	PDFFile  = "report.pdf"
)

// ErrNoSections is returned when none of the requested sections is in storage.
var ErrNoSections = errors.New("no stored sections to build a document from")

// BuildInput selects what goes into the document.
type BuildInput struct {
	Company   string
	Requester string
	Language  sections.Language
	// SectionIDs in presentation order. Missing sections are skipped.
	SectionIDs     []string
	IncludeSummary bool
	OutputDir      string
	GeneratedAt    time.Time
}

// BuildResult describes the written files.
type BuildResult struct {
	HTMLPath string
	// PDFPath is empty when the renderer produces no PDF or rendering failed.
	PDFPath  string
	Included []string
	Skipped  []string
	Issues   map[string][]validation.Issue
	// RenderErr is set when the HTML was written but the PDF could not be rendered.
	RenderErr error
	TOC       []assembly.TOCEntry
}

// Builder reads sections back from storage and produces report files.
type Builder struct {
	store    storage.Store
	catalog  *sections.Catalog
	renderer rendering.Renderer
	logger   *zap.Logger
}

// NewBuilder creates a Builder. A nil renderer writes HTML only.
func NewBuilder(store storage.Store, catalog *sections.Catalog, renderer rendering.Renderer, logger *zap.Logger) *Builder {
	if catalog == nil {
		catalog = sections.Default()
	}
	if renderer == nil {
		renderer = rendering.HTMLOnly{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: store, catalog: catalog, renderer: renderer, logger: logger}
}

// Build writes report.html (and report.pdf) into in.OutputDir.
// A PDF failure is reported in BuildResult.RenderErr; the HTML is still returned.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*BuildResult, error) {
	res := &BuildResult{Issues: make(map[string][]validation.Issue)}
	doc := assembly.Document{
		CompanyName: in.Company,
		PreparedFor: in.Requester,
		Language:    string(in.Language),
		LangTag:     in.Language.Tag(),
		GeneratedAt: in.GeneratedAt,
	}

	number := 0
	for _, id := range in.SectionIDs {
		text, err := b.read(ctx, in, id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && strings.TrimSpace(text) == "") {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		number++
		html, err := b.prepare(id, text, number, res)
		if err != nil {
			return nil, err
		}
		title := b.catalog.Title(id)
		if title == "" {
			title = id
		}
		doc.Sections = append(doc.Sections, assembly.Section{ID: id, Title: title, HTML: html})
		res.Included = append(res.Included, id)
	}

	if len(doc.Sections) == 0 {
		return nil, ErrNoSections
	}

	if in.IncludeSummary {
		text, err := b.read(ctx, in, summary.SectionID)
		switch {
		case err == nil:
			html, err := b.prepare(summary.SectionID, summary.StripFrontMatter(text), 0, res)
			if err != nil {
				return nil, err
			}
			doc.ExecutiveSummary = &assembly.Section{ID: summary.SectionID, Title: summary.Title, HTML: html}
		case errors.Is(err, storage.ErrNotFound):
			b.logger.Warn("executive summary requested but not stored", zap.String("company", in.Company))
		default:
			return nil, err
		}
	}

	art, err := assembly.Assemble(doc)
	if err != nil {
		return nil, err
	}
	res.TOC = art.TOC

	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	res.HTMLPath = filepath.Join(in.OutputDir, HTMLFile)
	if err := os.WriteFile(res.HTMLPath, []byte(art.HTML), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", HTMLFile, err)
	}
	b.logger.Info("report HTML written", zap.String("path", res.HTMLPath), zap.Int("sections", len(res.Included)))

	if rendering.ProducesPDF(b.renderer) {
		pdfPath := filepath.Join(in.OutputDir, PDFFile)
		if err := b.renderer.RenderPDF(ctx, res.HTMLPath, pdfPath); err != nil {
			res.RenderErr = err
			b.logger.Error("PDF rendering failed", zap.String("renderer", b.renderer.Name()), zap.Error(err))
		} else {
			res.PDFPath = pdfPath
			b.logger.Info("report PDF written", zap.String("path", pdfPath))
		}
	}
	return res, nil
}

func (b *Builder) read(ctx context.Context, in BuildInput, id string) (string, error) {
	text, err := b.store.Read(ctx, storage.Key{Company: in.Company, Language: string(in.Language), SectionID: id})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to read section %s: %w", id, err)
	}
	return text, err
}

// prepare repairs and converts one section's markdown.
func (b *Builder) prepare(id, text string, number int, res *BuildResult) (string, error) {
	checked := validation.ValidateMarkdown(text)
	if len(checked.Issues) > 0 {
		res.Issues[id] = checked.Issues
		for _, issue := range checked.Issues {
			b.logger.Debug("markdown issue",
				zap.String("section", id),
				zap.Int("line", issue.Line),
				zap.String("kind", string(issue.Kind)),
				zap.Bool("fixed", issue.Fixed))
		}
	}
	html, err := sectionHTML(checked.Content, number)
	if err != nil {
		return "", fmt.Errorf("section %s: %w", id, err)
	}
	return html, nil
}
