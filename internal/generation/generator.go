package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
)

// Generator produces one section: render the prompt, call the model, store the text.
type Generator struct {
	client llm.Client
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator creates a Generator. A nil logger disables logging.
func NewGenerator(client llm.Client, store storage.Store, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, store: store, logger: logger, now: time.Now}
}

// Generate runs a single attempt for spec. It never returns an error: failures are
// reported through the result. On success the text is in storage before it returns.
// The prompt must already have been validated; a render failure panics.
func (g *Generator) Generate(ctx context.Context, spec sections.Spec, req Request) SectionResult {
	prompt, err := spec.Render(req.Values())
	if err != nil {
		panic(fmt.Sprintf("section %s: prompt not validated before generation: %v", spec.ID, err))
	}

	log := g.logger.With(zap.String("section", spec.ID), zap.String("company", req.TargetCompany))
	start := g.now()
	result := SectionResult{ID: spec.ID, Attempts: 1}

	resp, err := g.client.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       req.Model.ModelName,
		Tier:        llm.TierStandard,
		Temperature: req.Model.Temperature,
	})
	result.ElapsedSeconds = g.now().Sub(start).Seconds()
	if err != nil {
		result.Status = StatusFailed
		result.Error = ErrorKind(llm.KindOf(err))
		result.ErrorMessage = err.Error()
		log.Warn("section generation failed",
			zap.String("kind", string(result.Error)),
			zap.Float64("elapsed_seconds", result.ElapsedSeconds),
			zap.Error(err))
		return result
	}

	text := withSources(llm.StripMarkdownFence(resp.Text), resp.GroundingURLs)
	key := storage.Key{Company: req.TargetCompany, Language: string(req.Language), SectionID: spec.ID}
	if err := g.store.Write(ctx, key, text); err != nil {
		result.Status = StatusFailed
		result.Error = KindStorage
		result.ErrorMessage = err.Error()
		log.Error("failed to store section text", zap.Error(err))
		return result
	}

	result.Status = StatusSuccess
	result.Text = text
	result.Sources = resp.GroundingURLs
	result.InputTokens = resp.InputTokens
	result.OutputTokens = resp.OutputTokens
	log.Info("section generated",
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
		zap.Float64("elapsed_seconds", result.ElapsedSeconds))
	return result
}
