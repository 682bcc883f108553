package generation

import (
	"regexp"
	"strings"
)

var sourcesHeading = regexp.MustCompile(`(?im)^#{2,3}\s+sources\s*:?\s*$`)

// withSources appends a Sources list built from the provider's grounding URLs when
// the model did not write one itself.
func withSources(text string, urls []string) string {
	if len(urls) == 0 || sourcesHeading.MatchString(text) {
		return text
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n\n## Sources\n\n")
	for _, u := range urls {
		b.WriteString("- <")
		b.WriteString(u)
		b.WriteString(">\n")
	}
	return b.String()
}
