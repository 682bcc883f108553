package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"empty response", fmt.Errorf("x: %w", ErrEmptyResponse), KindInvalidResponse},
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, KindRateLimited},
		{"googleapi 504", &googleapi.Error{Code: http.StatusGatewayTimeout}, KindTimeout},
		{"googleapi 500", &googleapi.Error{Code: http.StatusInternalServerError}, KindTransport},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), KindRateLimited},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), KindTimeout},
		{"plain", errors.New("connection reset"), KindTransport},
		{"already classified", &Error{Kind: KindRateLimited, Provider: ProviderGemini}, KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapError_KeepsExistingClassification(t *testing.T) {
	orig := &Error{Kind: KindInvalidResponse, Provider: ProviderOpenAI}
	wrapped := wrapError(ProviderGemini, fmt.Errorf("outer: %w", orig))
	assert.Equal(t, KindInvalidResponse, KindOf(wrapped))

	assert.Nil(t, wrapError(ProviderGemini, nil))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindTimeout, Provider: ProviderGemini, Cause: context.DeadlineExceeded}
	assert.Contains(t, err.Error(), "gemini")
	assert.Contains(t, err.Error(), "Timeout")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindRateLimited.Retryable())
	assert.False(t, KindInvalidResponse.Retryable())
	assert.False(t, KindTransport.Retryable())
}

func TestNewClient_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, &Config{Provider: ProviderGemini})
	assert.Error(t, err)

	_, err = NewClient(ctx, &Config{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewClient(ctx, &Config{Provider: ProviderVertex})
	assert.Error(t, err)

	_, err = NewClient(ctx, &Config{Provider: "anthropic", APIKey: "k"})
	assert.ErrorContains(t, err, "unsupported")
}

func TestResolveModel(t *testing.T) {
	cfg := DefaultGeminiConfig()

	m, err := resolveModel(cfg, Request{Model: "explicit"})
	assert.NoError(t, err)
	assert.Equal(t, "explicit", m)

	m, err = resolveModel(cfg, Request{})
	assert.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", m)

	_, err = resolveModel(&Config{}, Request{Tier: TierLite})
	assert.Error(t, err)
}
