package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient implements Client with the unified genai SDK. It talks to Vertex AI when a
// project is configured and to the Gemini API otherwise, and can ground answers with
// Google Search so the model can cite grounding redirect URLs.
type GenAIClient struct {
	client *genai.Client
	config *Config
}

// NewGenAIClient creates a genai-backed client
func NewGenAIClient(ctx context.Context, config *Config) (*GenAIClient, error) {
	cc := &genai.ClientConfig{}
	if config.Project != "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = config.Project
		cc.Location = config.Location
		if cc.Location == "" {
			cc.Location = "us-central1"
		}
	} else {
		if config.APIKey == "" {
			return nil, fmt.Errorf("API key or Vertex project is required")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = config.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIClient{client: client, config: config}, nil
}

// Generate runs one prompt, optionally with search grounding
func (c *GenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	modelName, err := resolveModel(c.config, req)
	if err != nil {
		return nil, wrapError(ProviderVertex, err)
	}

	ctx, cancel := callContext(ctx, c.config)
	defer cancel()

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if c.config.Grounding {
		gc.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, modelName, contents, gc)
	if err != nil {
		return nil, wrapError(ProviderVertex, fmt.Errorf("failed to generate content: %w", err))
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Kind: KindInvalidResponse, Provider: ProviderVertex, Cause: ErrEmptyResponse}
	}

	out := &Response{Text: text, GroundingURLs: groundingURLs(resp)}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}

// Close is a no-op; the genai client holds no closable resources.
func (c *GenAIClient) Close() error { return nil }

func groundingURLs(resp *genai.GenerateContentResponse) []string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	seen := make(map[string]bool)
	var urls []string
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		urls = append(urls, chunk.Web.URI)
	}
	return urls
}
