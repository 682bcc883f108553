// Package summary writes the executive summary that opens a report. It condenses the
// successful section texts with one model call and stores the result like a section.
package summary

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/prompts"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
)

// SectionID is the storage id of the executive summary.
const SectionID = "executive_summary"

// Title is the display title of the executive summary.
const Title = "Executive Summary"

const (
	promptFile = "summary.json"
	promptKey  = "executive_summary"
)

// ErrNoSections is returned when there is nothing to summarize.
var ErrNoSections = errors.New("no section texts to summarize")

var summaryHeading = regexp.MustCompile(`(?m)^##\s+\S`)

// Section is one generated section fed into the summary prompt.
type Section struct {
	ID    string
	Title string
	Text  string
}

// Input describes the report being summarized.
type Input struct {
	Company   string
	Requester string
	Language  sections.Language
	Sections  []Section
}

// Result is the stored summary with the tokens it cost.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Generator produces executive summaries with the lite model tier.
type Generator struct {
	client      llm.Client
	store       storage.Store
	logger      *zap.Logger
	model       string
	temperature float64
	now         func() time.Time
}

// NewGenerator creates a summary Generator. model may be empty to use the lite tier default.
func NewGenerator(client llm.Client, store storage.Store, logger *zap.Logger, model string, temperature float64) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, store: store, logger: logger, model: model, temperature: temperature, now: time.Now}
}

// BuildPrompt renders the summary prompt for in.
func BuildPrompt(in Input) (string, error) {
	template, err := prompts.Get(promptFile, promptKey)
	if err != nil {
		return "", err
	}

	var body strings.Builder
	for _, s := range in.Sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		fmt.Fprintf(&body, "=== %s ===\n\n%s\n\n", s.Title, strings.TrimSpace(StripFrontMatter(s.Text)))
	}

	return prompts.Format(template, map[string]string{
		"TargetCompany":    in.Company,
		"RequesterCompany": in.Requester,
		"Language":         string(in.Language),
		"Sections":         strings.TrimSpace(body.String()),
	}), nil
}

// Generate builds the summary, adds front matter when the model left it out and
// stores it under SectionID.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	var used []string
	for _, s := range in.Sections {
		if strings.TrimSpace(s.Text) != "" {
			used = append(used, s.ID)
		}
	}
	if len(used) == 0 {
		return nil, ErrNoSections
	}

	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("failed to build summary prompt: %w", err)
	}

	resp, err := g.client.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       g.model,
		Tier:        llm.TierLite,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("executive summary generation failed: %w", err)
	}

	text := llm.StripMarkdownFence(resp.Text)
	if !summaryHeading.MatchString(StripFrontMatter(text)) {
		g.logger.Warn("executive summary has no level-2 heading", zap.String("company", in.Company))
	}

	now := g.now()
	text, err = EnsureFrontMatter(text, FrontMatter{
		Title:       fmt.Sprintf("%s - %s", Title, in.Company),
		Date:        now.Format("2006-01-02"),
		Language:    string(in.Language),
		Type:        SectionID,
		Company:     in.Company,
		Sections:    used,
		GeneratedAt: now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	key := storage.Key{Company: in.Company, Language: string(in.Language), SectionID: SectionID}
	if err := g.store.Write(ctx, key, text); err != nil {
		return nil, fmt.Errorf("failed to store executive summary: %w", err)
	}

	g.logger.Info("executive summary generated",
		zap.String("company", in.Company),
		zap.Int("sections", len(used)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens))

	return &Result{Text: text, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}, nil
}
