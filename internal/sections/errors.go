// Package sections defines the fixed catalog of report sections and the supported output languages.
package sections

import "fmt"

// TemplateError reports a section template whose placeholders do not match its
// declared parameters. It always indicates a programming error in the catalog.
type TemplateError struct {
	SectionID string
	Message   string
	Cause     error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error in section %q: %s: %v", e.SectionID, e.Message, e.Cause)
	}
	return fmt.Sprintf("template error in section %q: %s", e.SectionID, e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}
