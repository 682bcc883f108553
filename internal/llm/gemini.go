package llm

import (
	"context"
	"fmt"
	"strings"

	generativeai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements Client for the Google Gemini API
type GeminiClient struct {
	client *generativeai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := generativeai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Generate runs one prompt against the configured Gemini model
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	modelName, err := resolveModel(c.config, req)
	if err != nil {
		return nil, wrapError(ProviderGemini, err)
	}

	ctx, cancel := callContext(ctx, c.config)
	defer cancel()

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(float32(req.Temperature))

	resp, err := model.GenerateContent(ctx, generativeai.Text(req.Prompt))
	if err != nil {
		return nil, wrapError(ProviderGemini, fmt.Errorf("failed to generate content: %w", err))
	}

	text, err := extractGeminiText(resp)
	if err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Provider: ProviderGemini, Cause: err}
	}

	out := &Response{Text: text}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractGeminiText joins the text parts of the first candidate
func extractGeminiText(resp *generativeai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil {
			return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no candidates in response", ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content (finish reason %s)", ErrEmptyResponse, candidate.FinishReason)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(generativeai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	text := strings.Join(parts, "")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text parts in response", ErrEmptyResponse)
	}
	return text, nil
}
