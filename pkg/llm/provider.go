// Package llm wraps the chat-completion providers behind one small
// interface. These calls are the opaque capability edge of the system: they
// may be slow, rate-limited, or non-deterministic, and every caller bounds
// them with its own context deadline.
package llm

import (
	"context"
	"fmt"
)

// Provider is a single-turn chat completion capability.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Request contains the parameters for one completion call.
type Request struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	Temperature  float64
	MaxTokens    int
}

// NewProvider selects a provider implementation by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
