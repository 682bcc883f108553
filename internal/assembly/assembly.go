// Package assembly composes rendered section HTML into one paginated report document:
// cover page, table of contents, optional executive summary, section blocks, closing page.
// It does not transform section content beyond assigning heading ids.
package assembly

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

//go:embed templates/*
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").ParseFS(templateFS, "templates/report.html.tmpl"))

var reportCSS = mustReadCSS()

func mustReadCSS() template.CSS {
	data, err := templateFS.ReadFile("templates/report.css")
	if err != nil {
		panic(fmt.Sprintf("embedded report.css missing: %v", err))
	}
	return template.CSS(data)
}

// Section is one report section with its already rendered HTML body.
type Section struct {
	ID    string
	Title string
	HTML  string
}

// Document is everything the assembler needs.
type Document struct {
	CompanyName string
	PreparedFor string
	Language    string
	// LangTag is the BCP 47 tag for the html lang attribute; empty means "en".
	LangTag string
	// GeneratedAt is printed on the cover; the zero time omits it.
	GeneratedAt      time.Time
	ExecutiveSummary *Section
	Sections         []Section
}

// TOCEntry is one line of the table of contents.
type TOCEntry struct {
	Number   string
	Title    string
	Anchor   string
	Children []TOCEntry
}

// Artifact is the assembled document.
type Artifact struct {
	HTML string
	TOC  []TOCEntry
}

// Error reports an assembly failure.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("assembly error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("assembly error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type sectionView struct {
	Number  int
	ID      string
	Anchor  string
	Title   string
	Content template.HTML
}

type pageData struct {
	CSS         template.CSS
	Company     string
	PreparedFor string
	Language    string
	LangTag     string
	Date        string
	TOC         []TOCEntry
	Summary     *sectionView
	Sections    []sectionView
}

// Reserved ids used by the fixed pages.
var fixedIDs = []string{"cover", "toc", "closing"}

// Assemble builds the report. The same Document always yields the same Artifact.
func Assemble(doc Document) (*Artifact, error) {
	if strings.TrimSpace(doc.CompanyName) == "" {
		return nil, &Error{Message: "company name is required"}
	}

	reg := newAnchors()
	for _, id := range fixedIDs {
		reg.reserve(id)
	}

	data := pageData{
		CSS:         reportCSS,
		Company:     doc.CompanyName,
		PreparedFor: doc.PreparedFor,
		Language:    doc.Language,
		LangTag:     doc.LangTag,
	}
	if data.LangTag == "" {
		data.LangTag = "en"
	}
	if !doc.GeneratedAt.IsZero() {
		data.Date = doc.GeneratedAt.Format("2006-01-02")
	}

	if s := doc.ExecutiveSummary; s != nil {
		view, entry, err := buildSection(reg, *s, 0)
		if err != nil {
			return nil, err
		}
		entry.Number = ""
		data.Summary = &view
		data.TOC = append(data.TOC, entry)
	}

	for i, s := range doc.Sections {
		view, entry, err := buildSection(reg, s, i+1)
		if err != nil {
			return nil, err
		}
		data.Sections = append(data.Sections, view)
		data.TOC = append(data.TOC, entry)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, &Error{Message: "failed to execute report template", Cause: err}
	}
	return &Artifact{HTML: buf.String(), TOC: data.TOC}, nil
}

// buildSection issues the section anchor, then ids for its h2/h3 headings, which become
// the section's TOC children. Heading ids in the content are replaced by registry ids.
func buildSection(reg *anchors, s Section, number int) (sectionView, TOCEntry, error) {
	anchor := reg.issue(s.ID)
	entry := TOCEntry{Title: s.Title, Anchor: anchor}
	if number > 0 {
		entry.Number = fmt.Sprintf("%d.", number)
	}

	content, children, err := anchorHeadings(reg, s.HTML)
	if err != nil {
		return sectionView{}, TOCEntry{}, &Error{Message: fmt.Sprintf("failed to parse section %s", s.ID), Cause: err}
	}
	entry.Children = children

	return sectionView{
		Number:  number,
		ID:      s.ID,
		Anchor:  anchor,
		Title:   s.Title,
		Content: template.HTML(content),
	}, entry, nil
}

const fragmentRoot = "assembly-fragment-root"

// anchorHeadings assigns registry ids to the h2/h3 elements of fragment and returns
// the rewritten fragment with a TOC entry per heading (h3 nested under the preceding h2).
func anchorHeadings(reg *anchors, fragment string) (string, []TOCEntry, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="` + fragmentRoot + `">` + fragment + `</div>`))
	if err != nil {
		return "", nil, err
	}
	root := doc.Find("#" + fragmentRoot)

	var entries []TOCEntry
	root.Find("h2, h3").Each(func(_ int, h *goquery.Selection) {
		title := strings.TrimSpace(h.Text())
		id := reg.issue(title)
		h.SetAttr("id", id)

		e := TOCEntry{Title: title, Anchor: id}
		if goquery.NodeName(h) == "h3" && len(entries) > 0 {
			last := &entries[len(entries)-1]
			last.Children = append(last.Children, e)
			return
		}
		entries = append(entries, e)
	})

	html, err := root.Html()
	if err != nil {
		return "", nil, err
	}
	return html, entries, nil
}
