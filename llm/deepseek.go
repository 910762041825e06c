// DeepSeek Provider - OpenAI-compatible API with a different base URL.

package llm

import (
	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a provider for deepseek-chat and
// deepseek-reasoner models.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL
	return newOpenAICompatible("deepseek", config, model, maxTokens, temperature)
}
