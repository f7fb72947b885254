package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
)

func newTestFactory(llmConfig common.LLMConfig) *ProviderFactory {
	cfg := common.NewDefaultConfig()
	return NewProviderFactory(&cfg.Gemini, &cfg.Claude, &llmConfig, arbor.NewLogger())
}

func TestDetectProvider(t *testing.T) {
	f := newTestFactory(common.LLMConfig{DefaultProvider: common.LLMProviderGemini})

	assert.Equal(t, ProviderClaude, f.DetectProvider("claude-haiku-4-5"))
	assert.Equal(t, ProviderClaude, f.DetectProvider("anthropic/claude-sonnet-4"))
	assert.Equal(t, ProviderGemini, f.DetectProvider("gemini/gemini-2.5-flash"))
	assert.Equal(t, ProviderGemini, f.DetectProvider(""))
	assert.Equal(t, "gemini-2.5-flash", NormalizeModel("gemini/gemini-2.5-flash"))

	claudeDefault := newTestFactory(common.LLMConfig{DefaultProvider: common.LLMProviderClaude})
	assert.Equal(t, ProviderClaude, claudeDefault.DetectProvider("custom-model"))
}

func TestAvailableRequiresKeyAndEnabled(t *testing.T) {
	f := newTestFactory(common.LLMConfig{Enabled: true})
	assert.False(t, f.Available())

	f.geminiConfig.APIKey = "key"
	assert.True(t, f.Available())

	f.llmConfig.Enabled = false
	assert.False(t, f.Available())
}

func TestGenerateWithoutKeyFails(t *testing.T) {
	f := newTestFactory(common.LLMConfig{Enabled: true})
	_, err := f.GenerateContent(context.Background(), &ContentRequest{Prompt: "hi"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestRetryBackoff(t *testing.T) {
	c := NewDefaultRetryConfig()

	assert.Equal(t, 2*time.Second, c.CalculateBackoff(0, errors.New("boom")))
	assert.Equal(t, 4*time.Second, c.CalculateBackoff(1, errors.New("boom")))

	rateErr := errors.New("Error 429, Message: Please retry in 10.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 10500*time.Millisecond, ExtractRetryDelay(rateErr))
	assert.Equal(t, 11500*time.Millisecond, c.CalculateBackoff(0, rateErr))
	assert.Equal(t, c.MaxBackoff, c.CalculateBackoff(10, rateErr))
}

func TestRetryDoStopsOnSuccess(t *testing.T) {
	c := &RetryConfig{MaxRetries: 3, ErrorBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	calls := 0
	err := c.Do(context.Background(), arbor.NewLogger(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = c.Do(context.Background(), arbor.NewLogger(), "test", func() error {
		calls++
		return errors.New("always")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestConvertToGenaiSchema(t *testing.T) {
	schema, err := convertToGenaiSchema(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"title"},
		"properties": map[string]interface{}{
			"title":      map[string]interface{}{"type": "string"},
			"salary_min": map[string]interface{}{"type": "number", "nullable": true},
			"tags":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"title"}, schema.Required)
	require.Contains(t, schema.Properties, "tags")
	assert.Equal(t, genai.TypeString, schema.Properties["tags"].Items.Type)

	_, err = convertToGenaiSchema(map[string]interface{}{"type": "tuple"})
	assert.Error(t, err)
}
