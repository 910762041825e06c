// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for chat completions.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request. Zero-valued options keep the
	// provider's configured defaults.
	Chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (LLMResponse, error)
}

// CallOptions overrides provider defaults for a single request.
type CallOptions struct {
	Format      *ResponseFormat
	Temperature *float32
	MaxTokens   uint32
}

func (o CallOptions) temperature(fallback float32) float32 {
	if o.Temperature != nil {
		return *o.Temperature
	}
	return fallback
}

func (o CallOptions) maxTokens(fallback uint32) uint32 {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return fallback
}

func (o CallOptions) wantsJSON() bool {
	return o.Format != nil && o.Format.Type != ResponseFormatText
}
