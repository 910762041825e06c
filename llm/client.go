// LLMClient - Simple wrapper around providers.

package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// DefaultCallTimeout bounds one completion request when no timeout is configured.
const DefaultCallTimeout = 120 * time.Second

// CallContext derives the context for one completion request. A
// non-positive timeout falls back to DefaultCallTimeout.
func CallContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// GenerationParams configures one completion: an optional system prompt
// plus per-call overrides.
type GenerationParams struct {
	System string
	CallOptions
}

// JSONParams returns params asking for a JSON object response.
func JSONParams(system string) GenerationParams {
	return GenerationParams{System: system, CallOptions: CallOptions{Format: NewJSONObjectFormat()}}
}

// Completer is the single text-completion operation the search agent consumes.
type Completer interface {
	Complete(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Client wraps a Provider with a simple interface.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Complete sends prompt as a single user message and returns the text.
func (c *Client) Complete(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	messages := make([]ChatMessage, 0, 2)
	if params.System != "" {
		messages = append(messages, SystemMessage(params.System))
	}
	messages = append(messages, UserMessage(prompt))
	return c.Chat(ctx, messages, params.CallOptions)
}

// Chat sends a chat completion request and returns just the content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (string, error) {
	response, err := c.provider.Chat(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return response.Content, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

var _ Completer = (*Client)(nil)
