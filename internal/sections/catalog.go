package sections

import (
	"fmt"
	"strings"
	"sync"

	"github.com/supervity/company-research/internal/prompts"
)

// Param is a placeholder a section template may declare.
type Param string

// Known template parameters.
const (
	ParamTargetCompany    Param = "TargetCompany"
	ParamRequesterCompany Param = "RequesterCompany"
	ParamLanguage         Param = "Language"
)

func knownParam(p Param) bool {
	switch p {
	case ParamTargetCompany, ParamRequesterCompany, ParamLanguage:
		return true
	}
	return false
}

// Values carries the substitution values for a section prompt.
type Values struct {
	TargetCompany    string
	RequesterCompany string
	Language         Language
}

func (v Values) lookup(p Param) string {
	switch p {
	case ParamTargetCompany:
		return v.TargetCompany
	case ParamRequesterCompany:
		return v.RequesterCompany
	case ParamLanguage:
		return string(v.Language)
	}
	return ""
}

// Spec is one report section: an id, a display title and a prompt template with
// a statically declared parameter list. Specs are immutable once built.
type Spec struct {
	ID       string
	Title    string
	Template string
	Params   []Param
}

// NewSpec builds a Spec and checks that the template uses exactly the declared params.
func NewSpec(id, title, template string, params []Param) (Spec, error) {
	if strings.TrimSpace(id) == "" {
		return Spec{}, &TemplateError{SectionID: id, Message: "empty section id"}
	}
	if strings.TrimSpace(template) == "" {
		return Spec{}, &TemplateError{SectionID: id, Message: "empty template"}
	}

	declared := make(map[Param]bool, len(params))
	for _, p := range params {
		if !knownParam(p) {
			return Spec{}, &TemplateError{SectionID: id, Message: fmt.Sprintf("unknown parameter %q declared", p)}
		}
		declared[p] = true
	}

	used := make(map[Param]bool)
	for _, name := range prompts.Placeholders(template) {
		p := Param(name)
		if !declared[p] {
			return Spec{}, &TemplateError{SectionID: id, Message: fmt.Sprintf("placeholder {{.%s}} is not a declared parameter", name)}
		}
		used[p] = true
	}
	for p := range declared {
		if !used[p] {
			return Spec{}, &TemplateError{SectionID: id, Message: fmt.Sprintf("declared parameter %q is never used", p)}
		}
	}

	ps := make([]Param, len(params))
	copy(ps, params)
	return Spec{ID: id, Title: title, Template: template, Params: ps}, nil
}

// Render substitutes the declared params. Every declared param needs a non-empty value.
func (s Spec) Render(v Values) (string, error) {
	data := make(map[string]string, len(s.Params))
	for _, p := range s.Params {
		val := strings.TrimSpace(v.lookup(p))
		if val == "" {
			return "", &TemplateError{SectionID: s.ID, Message: fmt.Sprintf("no value for parameter %q", p)}
		}
		data[string(p)] = val
	}
	return prompts.Format(s.Template, data), nil
}

// Catalog is the ordered, validated set of section specs.
type Catalog struct {
	specs []Spec
	index map[string]int
}

// NewCatalog builds a catalog from specs in presentation order.
func NewCatalog(specs ...Spec) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(specs))}
	for _, s := range specs {
		if _, dup := c.index[s.ID]; dup {
			return nil, &TemplateError{SectionID: s.ID, Message: "duplicate section id"}
		}
		c.index[s.ID] = len(c.specs)
		c.specs = append(c.specs, s)
	}
	return c, nil
}

// LoadCatalog builds the catalog from the embedded prompt files, validating every template.
func LoadCatalog() (*Catalog, error) {
	entries, err := prompts.Sections()
	if err != nil {
		return nil, &TemplateError{SectionID: "*", Message: "cannot load section prompts", Cause: err}
	}

	specs := make([]Spec, 0, len(entries))
	for _, e := range entries {
		params := make([]Param, len(e.Params))
		for i, p := range e.Params {
			params[i] = Param(p)
		}
		spec, err := NewSpec(e.ID, e.Title, e.Template, params)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return NewCatalog(specs...)
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog, panicking if it fails validation.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := LoadCatalog()
		if err != nil {
			panic(fmt.Sprintf("invalid built-in section catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup returns the spec for id.
func (c *Catalog) Lookup(id string) (Spec, bool) {
	i, ok := c.index[id]
	if !ok {
		return Spec{}, false
	}
	return c.specs[i], true
}

// Specs returns all specs in presentation order.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// IDs returns all section ids in presentation order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.specs))
	for i, s := range c.specs {
		ids[i] = s.ID
	}
	return ids
}

// Title returns the display title for id, or the id itself when unknown.
func (c *Catalog) Title(id string) string {
	if s, ok := c.Lookup(id); ok {
		return s.Title
	}
	return id
}

// Len returns the number of sections.
func (c *Catalog) Len() int { return len(c.specs) }
