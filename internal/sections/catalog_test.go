package sections

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_BuiltIn(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"basic", "vision", "management_strategy", "management_message", "crisis",
		"digital_transformation", "financial", "competitive", "regulatory", "business_structure",
	}, c.IDs())
	assert.Equal(t, "Crisis Management", c.Title("crisis"))
	assert.Equal(t, "unknown", c.Title("unknown"))
}

func TestDefault_RendersEverySection(t *testing.T) {
	v := Values{TargetCompany: "Acme Corp", RequesterCompany: "Supervity", Language: English}
	for _, spec := range Default().Specs() {
		out, err := spec.Render(v)
		require.NoError(t, err, spec.ID)
		assert.Contains(t, out, "Acme Corp")
		assert.Contains(t, out, "Supervity")
		assert.Contains(t, out, "English")
		assert.NotContains(t, out, "{{.")
	}
}

func TestNewSpec_UndeclaredPlaceholder(t *testing.T) {
	_, err := NewSpec("x", "X", "About {{.TargetCompany}} in {{.Language}}", []Param{ParamTargetCompany})

	var te *TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "x", te.SectionID)
	assert.Contains(t, te.Error(), "Language")
}

func TestNewSpec_UnusedDeclaredParam(t *testing.T) {
	_, err := NewSpec("x", "X", "About {{.TargetCompany}}", []Param{ParamTargetCompany, ParamLanguage})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "never used")
}

func TestNewSpec_UnknownParam(t *testing.T) {
	_, err := NewSpec("x", "X", "{{.Foo}}", []Param{"Foo"})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "unknown parameter")
}

func TestSpecRender_MissingValue(t *testing.T) {
	spec, err := NewSpec("x", "X", "{{.TargetCompany}} for {{.RequesterCompany}}", []Param{ParamTargetCompany, ParamRequesterCompany})
	require.NoError(t, err)

	_, err = spec.Render(Values{TargetCompany: "Acme"})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "RequesterCompany")
}

func TestNewCatalog_DuplicateID(t *testing.T) {
	a, err := NewSpec("a", "A", "{{.TargetCompany}}", []Param{ParamTargetCompany})
	require.NoError(t, err)

	_, err = NewCatalog(a, a)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "duplicate")
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{"English", English, false},
		{"english", English, false},
		{" 1 ", Japanese, false},
		{"10", French, false},
		{"11", "", true},
		{"0", "", true},
		{"Klingon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLanguage(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLanguages(t *testing.T) {
	langs := Languages()
	require.Len(t, langs, 10)
	for _, l := range langs {
		assert.True(t, l.Valid())
	}
	assert.False(t, Language("Latin").Valid())

	langs[0] = "mutated"
	assert.Equal(t, Japanese, Languages()[0])
}

func TestLanguageTag(t *testing.T) {
	assert.Equal(t, "ja", Japanese.Tag())
	assert.Equal(t, "th", Thai.Tag())
	assert.Equal(t, "zh-Hans", Chinese.Tag())
	assert.Equal(t, "en", English.Tag())
	assert.Equal(t, "en", Language("Latin").Tag())
	for _, l := range Languages() {
		assert.NotEmpty(t, l.Tag(), l)
	}
}
