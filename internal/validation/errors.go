// Package validation checks generated section markdown for structural defects and repairs them
// before the document is assembled.
package validation

import "fmt"

// FileReadError is returned when a markdown file cannot be read for checking.
type FileReadError struct {
	Path  string
	Cause error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading markdown %s: %v", e.Path, e.Cause)
}

func (e *FileReadError) Unwrap() error {
	return e.Cause
}
