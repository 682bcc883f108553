package assembly

import (
	"strconv"
	"strings"
)

// anchors issues unique element ids for one document. The same registry serves section
// and heading ids, so no two elements ever share an id.
type anchors struct {
	used map[string]bool
}

func newAnchors() *anchors {
	return &anchors{used: make(map[string]bool)}
}

// issue returns a fresh id derived from text. Repeats get -2, -3, ... suffixes.
func (a *anchors) issue(text string) string {
	base := slugify(text)
	id := base
	for n := 2; a.used[id]; n++ {
		id = base + "-" + strconv.Itoa(n)
	}
	a.used[id] = true
	return id
}

// reserve marks an id as taken without issuing it.
func (a *anchors) reserve(id string) {
	a.used[id] = true
}

// slugify lowercases text and joins ASCII letter/digit runs with hyphens. Ids stay
// ASCII so an href fragment and the id it points at are byte-identical after HTML
// escaping. Text without ASCII letters (e.g. Japanese headings) falls back to "section".
func slugify(text string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	s := b.String()
	if s == "" {
		return "section"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "h-" + s
	}
	return s
}
