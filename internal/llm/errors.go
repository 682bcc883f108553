package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies a failed model call.
type ErrorKind string

// Error kinds a model call can fail with.
const (
	KindTimeout         ErrorKind = "Timeout"
	KindRateLimited     ErrorKind = "RateLimited"
	KindInvalidResponse ErrorKind = "InvalidResponse"
	KindTransport       ErrorKind = "TransportError"
)

// Retryable reports whether another attempt may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindRateLimited
}

// ErrEmptyResponse is returned when the model answered without usable text.
var ErrEmptyResponse = errors.New("model returned no text")

// Error is a classified model call failure.
type Error struct {
	Kind     ErrorKind
	Provider Provider
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s call failed (%s): %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s call failed (%s)", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// wrapError classifies err and wraps it for provider p.
func wrapError(p Provider, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: classify(err), Provider: p, Cause: err}
}

// KindOf returns the classification of any error returned by a Client.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindInvalidResponse
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	switch httpStatus(err) {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	}

	switch status.Code(err) {
	case codes.ResourceExhausted:
		return KindRateLimited
	case codes.DeadlineExceeded:
		return KindTimeout
	}
	return KindTransport
}

// httpStatus extracts an HTTP status code from the provider SDK errors.
func httpStatus(err error) int {
	var gapiErr *googleapi.Error
	if errors.As(err, &gapiErr) {
		return gapiErr.Code
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	return 0
}
