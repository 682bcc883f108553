package assembly

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() Document {
	return Document{
		CompanyName: "Acme Corp",
		PreparedFor: "Supervity",
		Language:    "English",
		GeneratedAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		ExecutiveSummary: &Section{
			ID:    "executive_summary",
			Title: "Executive Summary",
			HTML:  "<h2>Overview</h2><p>Short.</p>",
		},
		Sections: []Section{
			{ID: "basic", Title: "Basic Information", HTML: "<h2>1. Overview</h2><p>Acme makes anvils.</p><h3>1.1 History</h3><p>Since 1920.</p>"},
			{ID: "vision", Title: "Vision Analysis", HTML: "<h2>2. Overview</h2><p>Be the best.</p><h2>2. Overview</h2>"},
			{ID: "financial", Title: "Financial Analysis", HTML: "<h2>売上高</h2><table><tr><td>1</td></tr></table>"},
		},
	}
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestAssemble_TOCAnchorsMatchHeadingIDs(t *testing.T) {
	art, err := Assemble(testDocument())
	require.NoError(t, err)
	doc := parse(t, art.HTML)

	hrefs := doc.Find("#toc a")
	require.Greater(t, hrefs.Length(), 0)
	hrefs.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		require.True(t, strings.HasPrefix(href, "#"), href)
		id := strings.TrimPrefix(href, "#")
		target := doc.Find(`[id="` + id + `"]`)
		assert.Equal(t, 1, target.Length(), "anchor %s must point at exactly one element", id)
		assert.Equal(t, strings.TrimSpace(a.Text()), strings.TrimSpace(target.Text()))
	})

	for _, s := range []string{"basic", "vision", "financial"} {
		heading := doc.Find(`section.section-cover[data-section="` + s + `"] h1`)
		id, ok := heading.Attr("id")
		require.True(t, ok)
		assert.Equal(t, 1, doc.Find(`#toc a[href="#`+id+`"]`).Length())
	}
}

func TestAssemble_IDsAreUnique(t *testing.T) {
	art, err := Assemble(testDocument())
	require.NoError(t, err)
	doc := parse(t, art.HTML)

	seen := map[string]bool{}
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	})
}

func TestAssemble_Deterministic(t *testing.T) {
	a, err := Assemble(testDocument())
	require.NoError(t, err)
	b, err := Assemble(testDocument())
	require.NoError(t, err)
	assert.Equal(t, a.HTML, b.HTML)
	assert.Equal(t, a.TOC, b.TOC)
}

func TestAssemble_Structure(t *testing.T) {
	art, err := Assemble(testDocument())
	require.NoError(t, err)
	doc := parse(t, art.HTML)

	assert.Equal(t, "Acme Corp", strings.TrimSpace(doc.Find(".cover-title").Text()))
	assert.Contains(t, doc.Find(".cover-meta").Text(), "2026-04-01")
	assert.Equal(t, 1, doc.Find("#closing").Length())
	assert.Equal(t, 3, doc.Find("section.section-cover").Length())
	assert.Equal(t, 3, doc.Find("section.section-body").Length())
	assert.Equal(t, 1, doc.Find("section.executive-summary").Length())

	// Order: cover, toc, summary, then sections in the given order, then closing.
	var order []string
	doc.Find("body > section, body > nav").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("id"); ok {
			order = append(order, id)
			return
		}
		ds, _ := s.Attr("data-section")
		order = append(order, ds)
	})
	assert.Equal(t, []string{"cover", "toc", "executive_summary", "basic", "basic", "vision", "vision", "financial", "financial", "closing"}, order)
}

func TestAssemble_TOCTree(t *testing.T) {
	art, err := Assemble(testDocument())
	require.NoError(t, err)

	require.Len(t, art.TOC, 4)
	assert.Equal(t, "", art.TOC[0].Number)
	assert.Equal(t, "Executive Summary", art.TOC[0].Title)

	basic := art.TOC[1]
	assert.Equal(t, "1.", basic.Number)
	assert.Equal(t, "basic", basic.Anchor)
	require.Len(t, basic.Children, 1)
	assert.Equal(t, "1. Overview", basic.Children[0].Title)
	require.Len(t, basic.Children[0].Children, 1)
	assert.Equal(t, "1.1 History", basic.Children[0].Children[0].Title)

	vision := art.TOC[2]
	require.Len(t, vision.Children, 2)
	assert.NotEqual(t, vision.Children[0].Anchor, vision.Children[1].Anchor)

	financial := art.TOC[3]
	require.Len(t, financial.Children, 1)
	assert.Equal(t, "section", financial.Children[0].Anchor)
}

func TestAssemble_PreservesContent(t *testing.T) {
	doc := Document{CompanyName: "Acme", Sections: []Section{{ID: "basic", Title: "Basic", HTML: `<p class="x">Keep <strong>this</strong> &amp; that</p>`}}}
	art, err := Assemble(doc)
	require.NoError(t, err)
	assert.Contains(t, art.HTML, `<p class="x">Keep <strong>this</strong> &amp; that</p>`)
	assert.NotContains(t, art.HTML, "Date</dt>")
}

func TestAssemble_RequiresCompany(t *testing.T) {
	_, err := Assemble(Document{})
	var aerr *Error
	assert.True(t, errors.As(err, &aerr))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "basic", slugify("basic"))
	assert.Equal(t, "management-strategy", slugify("management_strategy"))
	assert.Equal(t, "h-1-1-history", slugify("1.1 History"))
	assert.Equal(t, "section", slugify("売上高"))
	assert.Equal(t, "q3-2024", slugify("  Q3 / 2024 "))
}

func TestAnchors_Dedup(t *testing.T) {
	reg := newAnchors()
	reg.reserve("toc")
	assert.Equal(t, "toc-2", reg.issue("TOC"))
	assert.Equal(t, "overview", reg.issue("Overview"))
	assert.Equal(t, "overview-2", reg.issue("overview"))
	assert.Equal(t, "overview-3", reg.issue("Overview!"))
}

func TestAssemble_LangAttribute(t *testing.T) {
	art, err := Assemble(testDocument())
	require.NoError(t, err)
	lang, _ := parse(t, art.HTML).Find("html").Attr("lang")
	assert.Equal(t, "en", lang)

	doc := testDocument()
	doc.Language, doc.LangTag = "Japanese", "ja"
	art, err = Assemble(doc)
	require.NoError(t, err)
	lang, _ = parse(t, art.HTML).Find("html").Attr("lang")
	assert.Equal(t, "ja", lang)
}
