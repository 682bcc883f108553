package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const researchSystemPrompt = "You are a meticulous corporate research analyst. Answer only with the requested markdown report."

// OpenAIClient implements Client using the official openai-go SDK (chat completions).
type OpenAIClient struct {
	client openai.Client
	config *Config
}

// NewOpenAIClient creates a client for OpenAI or an OpenAI-compatible endpoint
func NewOpenAIClient(config *Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key missing")
	}
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	// Retries are decided by the orchestrator, not the SDK
	opts = append(opts, option.WithMaxRetries(0))
	return &OpenAIClient{client: openai.NewClient(opts...), config: config}, nil
}

// Generate runs one prompt as a chat completion
func (o *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	modelName, err := resolveModel(o.config, req)
	if err != nil {
		return nil, wrapError(ProviderOpenAI, err)
	}

	ctx, cancel := callContext(ctx, o.config)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(researchSystemPrompt),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return nil, wrapError(ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, &Error{Kind: KindInvalidResponse, Provider: ProviderOpenAI, Cause: ErrEmptyResponse}
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// Close is a no-op for the HTTP-based client
func (o *OpenAIClient) Close() error { return nil }
