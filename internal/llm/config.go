// Package llm provides the model client abstraction used to generate report sections.
// A client turns one rendered prompt into text plus token usage, or a classified error.
package llm

import "time"

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for cheap follow-up work such as the executive summary
	TierLite ModelTier = "lite"
	// TierStandard is used for section research
	TierStandard ModelTier = "standard"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini API via the generative-ai-go SDK
	ProviderGemini Provider = "gemini"
	// ProviderVertex is Gemini through the unified genai SDK with search grounding
	ProviderVertex Provider = "vertex"
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint
	ProviderOpenAI Provider = "openai"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 5 * time.Minute

// Config holds the model configuration. It is passed explicitly to NewClient;
// nothing in this package reads the environment.
type Config struct {
	Provider Provider
	APIKey   string
	Models   map[ModelTier]string
	// Timeout applies to each Generate call individually.
	Timeout time.Duration
	// BaseURL overrides the OpenAI endpoint.
	BaseURL string
	// Project and Location select a Vertex AI backend; empty means the Gemini API.
	Project  string
	Location string
	// Grounding enables the Google Search tool where the provider supports it.
	Grounding bool
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash",
			TierStandard: "gemini-2.5-pro",
		},
		Timeout: DefaultTimeout,
	}
}

// DefaultOpenAIConfig returns the default OpenAI configuration
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o",
		},
		Timeout: DefaultTimeout,
	}
}

// DefaultConfigFor returns the defaults for a provider.
func DefaultConfigFor(p Provider) *Config {
	switch p {
	case ProviderOpenAI:
		return DefaultOpenAIConfig()
	case ProviderVertex:
		cfg := DefaultGeminiConfig()
		cfg.Provider = ProviderVertex
		cfg.Grounding = true
		return cfg
	default:
		return DefaultGeminiConfig()
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
