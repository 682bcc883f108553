// Package rendering turns an assembled HTML report into a PDF.
package rendering

import "fmt"

// RenderError represents a PDF rendering failure
type RenderError struct {
	Engine  string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error (%s): %s: %v", e.Engine, e.Message, e.Cause)
	}
	return fmt.Sprintf("render error (%s): %s", e.Engine, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
