package sections

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Language is one of the supported report output languages.
type Language string

// Supported languages, in menu order.
const (
	Japanese   Language = "Japanese"
	English    Language = "English"
	Chinese    Language = "Chinese"
	Korean     Language = "Korean"
	Vietnamese Language = "Vietnamese"
	Thai       Language = "Thai"
	Indonesian Language = "Indonesian"
	Spanish    Language = "Spanish"
	German     Language = "German"
	French     Language = "French"
)

var languages = []Language{
	Japanese, English, Chinese, Korean, Vietnamese,
	Thai, Indonesian, Spanish, German, French,
}

var tags = map[Language]language.Tag{
	Japanese:   language.Japanese,
	English:    language.English,
	Chinese:    language.SimplifiedChinese,
	Korean:     language.Korean,
	Vietnamese: language.Vietnamese,
	Thai:       language.Thai,
	Indonesian: language.Indonesian,
	Spanish:    language.Spanish,
	German:     language.German,
	French:     language.French,
}

// Tag returns the BCP 47 tag for l, used as the document's lang attribute.
// Unknown languages fall back to English.
func (l Language) Tag() string {
	if t, ok := tags[l]; ok {
		return t.String()
	}
	return language.English.String()
}

// Languages returns the supported languages in menu order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	for _, s := range languages {
		if s == l {
			return true
		}
	}
	return false
}

func (l Language) String() string { return string(l) }

// ParseLanguage accepts a language name (case-insensitive) or its 1-based menu number.
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(languages) {
			return languages[n-1], nil
		}
		return "", fmt.Errorf("unsupported language number %d (expected 1-%d)", n, len(languages))
	}
	for _, l := range languages {
		if strings.EqualFold(string(l), s) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}
