// Package classifier implements the intent classifier consumed by the
// router: one bounded LLM call asked to name the agent for a user intent.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orquestra-labs/orquestra/pkg/llm"
)

// systemPrompt instructs the model to act as an intent router over the
// registered agents and to answer with a stable JSON shape. The agent list is
// injected at construction so the prompt never drifts from the registry.
const systemPrompt = `Você é um Manager Agent responsável por orquestrar chamadas a outros agentes especializados.
Seu papel não é responder diretamente às perguntas, mas identificar a intenção do usuário e redirecionar a solicitação para o agente mais adequado.

Agentes disponíveis: %s

Sempre responda apenas com JSON no formato:
{"agent_called": "<nome_do_agente>", "payload": {}}

Regras:
- Nunca invente agentes que não existem.
- Se nenhum agente for adequado, use "agent_called": "unknown".
- Mantenha consistência no formato JSON.`

// Classifier calls an LLM provider with a per-call timeout. It satisfies the
// router's Classifier interface; parsing of the (possibly messy) response is
// the router's concern.
type Classifier struct {
	provider llm.Provider
	model    string
	temp     float64
	timeout  time.Duration
	prompt   string
}

// Config selects model and timeout for classification calls.
type Config struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// New creates a classifier routing among agentNames.
func New(provider llm.Provider, agentNames []string, cfg Config) *Classifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Classifier{
		provider: provider,
		model:    cfg.Model,
		temp:     cfg.Temperature,
		timeout:  timeout,
		prompt:   fmt.Sprintf(systemPrompt, strings.Join(agentNames, ", ")),
	}
}

// Classify returns the raw model output for the router to parse.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.provider.Complete(ctx, llm.Request{
		Model:        c.model,
		SystemPrompt: c.prompt,
		UserMessage:  fmt.Sprintf("A intenção do usuário é: %s", text),
		Temperature:  c.temp,
		MaxTokens:    256,
	})
	if err != nil {
		return "", fmt.Errorf("classify intent: %w", err)
	}
	return raw, nil
}
