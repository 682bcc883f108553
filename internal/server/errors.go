package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/storage"
)

// ErrNotFound indicates the requested run, section or document does not exist
type ErrNotFound struct {
	What string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.ID)
}

// ErrConflict indicates the run is in a state that does not allow the operation
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound   *ErrNotFound
		conflict   *ErrConflict
		validation *ErrValidation
		request    *generation.RequestValidationError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &request):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, db.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
