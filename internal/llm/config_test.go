package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierStandard))
	assert.Equal(t, DefaultTimeout, config.Timeout)
}

func TestDefaultConfigFor(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, DefaultConfigFor(ProviderOpenAI).Provider)
	assert.Equal(t, "gpt-4o", DefaultConfigFor(ProviderOpenAI).GetModel(TierStandard))

	vertex := DefaultConfigFor(ProviderVertex)
	assert.Equal(t, ProviderVertex, vertex.Provider)
	assert.True(t, vertex.Grounding)

	assert.Equal(t, ProviderGemini, DefaultConfigFor("unknown").Provider)
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite: "fallback-model",
		},
	}

	// Unknown tier should fallback to TierStandard, then TierLite
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{Provider: ProviderGemini, Models: map[ModelTier]string{}}
	assert.Equal(t, "", config.GetModel(TierStandard))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierStandard, "custom-model")

	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierStandard))
	assert.Equal(t, "custom-model", newConfig.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-flash", newConfig.GetModel(TierLite))
	assert.Equal(t, config.Timeout, newConfig.Timeout)
}

func TestConfigTimeout_Default(t *testing.T) {
	assert.Equal(t, DefaultTimeout, (&Config{}).timeout())
	assert.Equal(t, time.Second, (&Config{Timeout: time.Second}).timeout())
}
