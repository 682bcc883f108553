package db

import "time"

// Run status values stored in research_runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)

// Run is one report generation request and, once finished, its report.
type Run struct {
	ID            string     `json:"run_id"`
	Company       string     `json:"company"`
	Requester     string     `json:"requester"`
	Language      string     `json:"language"`
	SectionIDs    []string   `json:"section_ids"`
	Model         string     `json:"model"`
	Status        string     `json:"status"`
	OverallStatus *string    `json:"overall_status,omitempty"`
	InputTokens   int        `json:"input_tokens"`
	OutputTokens  int        `json:"output_tokens"`
	Report        []byte     `json:"-"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RunInput holds the fields known when a run starts.
type RunInput struct {
	ID         string
	Company    string
	Requester  string
	Language   string
	SectionIDs []string
	Model      string
}

// RunResult holds the fields written when a run finishes.
type RunResult struct {
	Status        string
	OverallStatus string
	InputTokens   int
	OutputTokens  int
	// Report is the JSON-encoded generation report.
	Report       []byte
	ErrorMessage string
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Company string
	Status  string
	Limit   int
	Offset  int
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 50

// GenerationLogEntry is one analytics row per finished run.
type GenerationLogEntry struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	TargetCompany    string    `json:"target_company"`
	RequesterCompany string    `json:"requester_company"`
	Language         string    `json:"language"`
	Sections         []string  `json:"sections"`
	TotalSections    int       `json:"total_sections"`
	Success          bool      `json:"success"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
