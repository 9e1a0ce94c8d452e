// Package agents provides the registered agent capabilities. Each agent is a
// prompt over a chat-completion provider with payload validation and bounded
// retry; the domain behavior lives in the prompt, the engineering lives here.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orquestra-labs/orquestra/pkg/llm"
)

// ErrInvalidPayload marks a payload that fails schema validation.
var ErrInvalidPayload = errors.New("invalid agent payload")

// payloadSchema mirrors the router payload contract: a non-empty message,
// bounded so prompts cannot be blown up by arbitrarily long input.
var payloadSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"properties": {
		"message": {"type": "string", "minLength": 1, "maxLength": 2000}
	},
	"required": ["message"]
}`)

// Config bounds every agent's LLM calls.
type Config struct {
	Model       string
	Temperature float64
	MaxAttempts int           // total attempts per invocation
	Timeout     time.Duration // per-attempt deadline
}

// DefaultConfig retries twice after the first attempt with a 500ms backoff
// doubling to a 5s cap.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		MaxAttempts: 3,
		Timeout:     30 * time.Second,
	}
}

// llmAgent is the shared implementation behind every registered agent.
type llmAgent struct {
	name     string
	prompt   string
	provider llm.Provider
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
}

func newLLMAgent(name, prompt string, provider llm.Provider, cfg Config) *llmAgent {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &llmAgent{
		name:     name,
		prompt:   prompt,
		provider: provider,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

func (a *llmAgent) Name() string {
	return a.name
}

// Invoke validates the payload, then calls the provider with retry. Breaker
// accounting is deliberately not done here: the orchestration layer owns the
// gate, so an agent invoked directly through /execute does not double-count.
func (a *llmAgent) Invoke(ctx context.Context, payload map[string]interface{}) (string, error) {
	message, err := validatePayload(payload)
	if err != nil {
		return "", err
	}

	resp, err := a.complete(ctx, message)
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.name, err)
	}
	if strings.TrimSpace(resp) == "" {
		return "", fmt.Errorf("%s: invalid_output: empty response", a.name)
	}
	return resp, nil
}

func (a *llmAgent) complete(ctx context.Context, message string) (string, error) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		resp, err := a.attempt(ctx, message)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == a.cfg.MaxAttempts {
			break
		}
		if err := a.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
	return "", lastErr
}

func (a *llmAgent) attempt(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	return a.provider.Complete(ctx, llm.Request{
		Model:        a.cfg.Model,
		SystemPrompt: a.prompt,
		UserMessage:  message,
		Temperature:  a.cfg.Temperature,
		MaxTokens:    1024,
	})
}

// validatePayload checks the payload against the schema and extracts message.
func validatePayload(payload map[string]interface{}) (string, error) {
	result, err := gojsonschema.Validate(payloadSchema, gojsonschema.NewGoLoader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(details, "; "))
	}
	message, _ := payload["message"].(string)
	return message, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
