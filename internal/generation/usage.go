package generation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/supervity/company-research/internal/schemas"
	"github.com/supervity/company-research/internal/sections"
)

// File names written next to the section texts.
const (
	UsageReportFile      = "token_usage_report.json"
	GenerationConfigFile = "generation_config.yaml"
)

// UsageSection is one entry of the usage report.
type UsageSection struct {
	ID             string    `json:"id"`
	Title          string    `json:"title,omitempty"`
	Status         Status    `json:"status"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Attempts       int       `json:"attempts"`
	Error          ErrorKind `json:"error,omitempty"`
}

// UsageSummary aggregates a run.
type UsageSummary struct {
	TotalInputTokens    int           `json:"total_input_tokens"`
	TotalOutputTokens   int           `json:"total_output_tokens"`
	TotalTokens         int           `json:"total_tokens"`
	TotalElapsedSeconds float64       `json:"total_elapsed_seconds"`
	Successful          int           `json:"successful"`
	Failed              int           `json:"failed"`
	Interrupted         bool          `json:"interrupted"`
	OverallStatus       OverallStatus `json:"overall_status"`
	WallClockSeconds    float64       `json:"wall_clock_seconds"`
}

// UsageReport is the serialized form of token_usage_report.json.
type UsageReport struct {
	RunID       string         `json:"run_id"`
	Company     string         `json:"company"`
	Requester   string         `json:"requester,omitempty"`
	Language    string         `json:"language"`
	Model       string         `json:"model"`
	GeneratedAt time.Time      `json:"generated_at"`
	Sections    []UsageSection `json:"sections"`
	NotStarted  []string       `json:"not_started,omitempty"`
	Summary     UsageSummary   `json:"summary"`
}

// NewUsageReport builds the usage report for r. model is the resolved model name.
func NewUsageReport(r *Report, catalog *sections.Catalog, model string) UsageReport {
	ok, failed := r.Counts()
	u := UsageReport{
		RunID:       r.RunID,
		Company:     r.Request.TargetCompany,
		Requester:   r.Request.RequesterCompany,
		Language:    string(r.Request.Language),
		Model:       model,
		GeneratedAt: r.FinishedAt.UTC(),
		Sections:    []UsageSection{},
		NotStarted:  r.NotStarted,
		Summary: UsageSummary{
			TotalInputTokens:    r.TotalInputTokens,
			TotalOutputTokens:   r.TotalOutputTokens,
			TotalTokens:         r.TotalInputTokens + r.TotalOutputTokens,
			TotalElapsedSeconds: r.TotalElapsed,
			Successful:          ok,
			Failed:              failed,
			Interrupted:         r.Interrupted,
			OverallStatus:       r.OverallStatus,
			WallClockSeconds:    r.WallClockSeconds,
		},
	}
	for _, res := range r.Ordered() {
		s := UsageSection{
			ID:             res.ID,
			Status:         res.Status,
			InputTokens:    res.InputTokens,
			OutputTokens:   res.OutputTokens,
			ElapsedSeconds: res.ElapsedSeconds,
			Attempts:       res.Attempts,
			Error:          res.Error,
		}
		if catalog != nil {
			s.Title = catalog.Title(res.ID)
		}
		u.Sections = append(u.Sections, s)
	}
	return u
}

// Marshal serializes the report and checks it against the embedded schema.
func (u UsageReport) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage report: %w", err)
	}
	if err := schemas.ValidateUsageReport(data); err != nil {
		return nil, fmt.Errorf("usage report does not match schema: %w", err)
	}
	return data, nil
}

// WriteUsageReport writes token_usage_report.json into dir.
func WriteUsageReport(dir string, u UsageReport) (string, error) {
	data, err := u.Marshal()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, UsageReportFile)
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// GenerationConfig records how a run was configured.
type GenerationConfig struct {
	RunID       string    `yaml:"run_id"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Provider    string    `yaml:"provider,omitempty"`
	Model       string    `yaml:"model"`
	PoolSize    int       `yaml:"pool_size"`
	MaxAttempts int       `yaml:"max_attempts"`
	Timeout     string    `yaml:"timeout,omitempty"`
	Request     Request   `yaml:"request"`
}

// WriteGenerationConfig writes generation_config.yaml into dir.
func WriteGenerationConfig(dir string, cfg GenerationConfig) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation config: %w", err)
	}
	path := filepath.Join(dir, GenerationConfigFile)
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadGenerationConfig loads a generation_config.yaml written by WriteGenerationConfig.
func ReadGenerationConfig(dir string) (*GenerationConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, GenerationConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read generation config: %w", err)
	}
	var cfg GenerationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse generation config: %w", err)
	}
	return &cfg, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
