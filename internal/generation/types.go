// Package generation turns a research request into section texts: one model call per
// section, run through a bounded worker pool, collected into a GenerationReport.
package generation

import (
	"fmt"
	"time"

	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/sections"
)

// Status is the outcome of one section.
type Status string

// Section statuses.
const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// OverallStatus summarizes a whole run.
type OverallStatus string

// Overall statuses.
const (
	AllSucceeded   OverallStatus = "AllSucceeded"
	PartialFailure OverallStatus = "PartialFailure"
	AllFailed      OverallStatus = "AllFailed"
)

// ErrorKind classifies a failed section.
type ErrorKind string

// Failure kinds. The first four mirror llm.ErrorKind.
const (
	KindTimeout         ErrorKind = ErrorKind(llm.KindTimeout)
	KindRateLimited     ErrorKind = ErrorKind(llm.KindRateLimited)
	KindInvalidResponse ErrorKind = ErrorKind(llm.KindInvalidResponse)
	KindTransport       ErrorKind = ErrorKind(llm.KindTransport)
	KindStorage         ErrorKind = "StorageError"
)

// Retryable reports whether another attempt may succeed.
func (k ErrorKind) Retryable() bool {
	return llm.ErrorKind(k).Retryable()
}

// ModelConfig selects the model and sampling temperature for section calls.
type ModelConfig struct {
	ModelName   string  `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// Request describes one report run. It is built once and never mutated.
type Request struct {
	TargetCompany    string            `json:"target_company" yaml:"target_company"`
	RequesterCompany string            `json:"requester_company" yaml:"requester_company"`
	Language         sections.Language `json:"language" yaml:"language"`
	SectionIDs       []string          `json:"section_ids" yaml:"section_ids"`
	Model            ModelConfig       `json:"model" yaml:"model"`
}

// Values returns the template substitution values for the request.
func (r Request) Values() sections.Values {
	return sections.Values{
		TargetCompany:    r.TargetCompany,
		RequesterCompany: r.RequesterCompany,
		Language:         r.Language,
	}
}

// SectionResult is produced exactly once per started section.
type SectionResult struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	Text           string    `json:"-"`
	// Sources are the grounding URLs the provider attached to the answer.
	Sources        []string  `json:"sources,omitempty"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Error          ErrorKind `json:"error,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Attempts       int       `json:"attempts"`
}

// Succeeded reports whether the section produced text.
func (r SectionResult) Succeeded() bool { return r.Status == StatusSuccess }

// Report is the outcome of a run.
type Report struct {
	RunID             string                   `json:"run_id"`
	Request           Request                  `json:"request"`
	PerSection        map[string]SectionResult `json:"per_section"`
	TotalInputTokens  int                      `json:"total_input_tokens"`
	TotalOutputTokens int                      `json:"total_output_tokens"`
	TotalElapsed      float64                  `json:"total_elapsed"`
	OverallStatus     OverallStatus            `json:"overall_status"`
	StartedAt         time.Time                `json:"started_at"`
	FinishedAt        time.Time                `json:"finished_at"`
	WallClockSeconds  float64                  `json:"wall_clock_seconds"`
	Interrupted       bool                     `json:"interrupted"`
	NotStarted        []string                 `json:"not_started,omitempty"`
}

// ComputeStatus derives the overall status from a set of results.
// An empty set counts as AllFailed.
func ComputeStatus(results map[string]SectionResult) OverallStatus {
	ok := 0
	for _, r := range results {
		if r.Succeeded() {
			ok++
		}
	}
	switch {
	case ok == 0:
		return AllFailed
	case ok == len(results):
		return AllSucceeded
	default:
		return PartialFailure
	}
}

// finalize fills the totals and overall status from PerSection.
func (r *Report) finalize() {
	r.TotalInputTokens, r.TotalOutputTokens, r.TotalElapsed = 0, 0, 0
	for _, res := range r.PerSection {
		r.TotalElapsed += res.ElapsedSeconds
		if res.Succeeded() {
			r.TotalInputTokens += res.InputTokens
			r.TotalOutputTokens += res.OutputTokens
		}
	}
	r.OverallStatus = ComputeStatus(r.PerSection)
}

// Ordered returns the present results in request order.
func (r *Report) Ordered() []SectionResult {
	out := make([]SectionResult, 0, len(r.PerSection))
	for _, id := range r.Request.SectionIDs {
		if res, ok := r.PerSection[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// SucceededIDs returns the ids of successful sections in request order.
func (r *Report) SucceededIDs() []string {
	var ids []string
	for _, res := range r.Ordered() {
		if res.Succeeded() {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Counts returns the number of successful and failed sections.
func (r *Report) Counts() (succeeded, failed int) {
	for _, res := range r.PerSection {
		if res.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// RequestValidationError is returned by Run before any work starts when the
// request cannot be served.
type RequestValidationError struct {
	Field   string
	Message string
}

func (e *RequestValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}
