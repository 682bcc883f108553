package llm

import (
	"context"
	"fmt"
)

// Request is one model call: a fully rendered prompt plus generation parameters.
type Request struct {
	Prompt string
	// Model overrides the model configured for Tier when non-empty.
	Model       string
	Tier        ModelTier
	Temperature float64
}

// Response is the generated text with its token usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	// GroundingURLs lists the search sources the provider attached, if any.
	GroundingURLs []string
}

// Client is an abstraction over LLM providers
type Client interface {
	// Generate performs a single model call. Failures are *Error values.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config)
	case ProviderVertex:
		return NewGenAIClient(ctx, config)
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// resolveModel picks the request's explicit model or the tier default.
func resolveModel(cfg *Config, req Request) (string, error) {
	if req.Model != "" {
		return req.Model, nil
	}
	tier := req.Tier
	if tier == "" {
		tier = TierStandard
	}
	model := cfg.GetModel(tier)
	if model == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}
	return model, nil
}

// callContext bounds a single model call by the configured timeout.
func callContext(ctx context.Context, cfg *Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.timeout())
}
