package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/internal/metrics"
)

// ErrEmptyIntent is the only error Decide raises: the caller violated the
// contract by passing an empty user intent. Classifier-level failures never
// surface as errors.
var ErrEmptyIntent = errors.New("user intent must not be empty")

// Classifier is the opaque intent-classification capability. It may be slow,
// rate-limited, or return malformed output; Classify should honor ctx for
// per-call timeouts.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// RoutingDecision is the router's verdict for one request. AgentCalled is a
// canonical agent name or Unknown; Payload is handed to the agent as-is.
type RoutingDecision struct {
	AgentCalled string                 `json:"agent_called"`
	Payload     map[string]interface{} `json:"payload"`
}

// RetryConfig bounds the classifier call.
type RetryConfig struct {
	MaxAttempts int           // total attempts, not retries after the first
	BackoffBase time.Duration // first backoff; doubles per attempt
	BackoffMax  time.Duration // backoff cap
}

// DefaultRetryConfig retries once with a 300ms backoff, capped at 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		BackoffBase: 300 * time.Millisecond,
		BackoffMax:  2 * time.Second,
	}
}

// IntentRouter orchestrates classifier, resolver, and the deterministic
// keyword fallback.
type IntentRouter struct {
	classifier Classifier
	resolver   *Resolver
	retry      RetryConfig
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates an IntentRouter. Metrics may be nil.
func New(classifier Classifier, resolver *Resolver, retry RetryConfig, logger zerolog.Logger, m *metrics.Metrics) *IntentRouter {
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryConfig()
	}
	return &IntentRouter{
		classifier: classifier,
		resolver:   resolver,
		retry:      retry,
		logger:     logger,
		metrics:    m,
		sleep:      sleepCtx,
	}
}

// Resolver exposes the router's name resolver so other components consult one
// shared synonym table.
func (ir *IntentRouter) Resolver() *Resolver {
	return ir.resolver
}

// Decide routes userIntent to a canonical agent name. Classifier failures are
// absorbed: after retries the deterministic keyword rule takes over and the
// payload carries a diagnostic note plus the triggering error, so operators
// can tell degraded routing from classifier-confirmed routing.
func (ir *IntentRouter) Decide(ctx context.Context, userIntent string) (RoutingDecision, error) {
	if strings.TrimSpace(userIntent) == "" {
		return RoutingDecision{}, ErrEmptyIntent
	}

	raw, err := ir.classify(ctx, userIntent)
	if err != nil {
		ir.metrics.RecordClassifierFailure()
		ir.logger.Warn().Err(err).Msg("Classifier failed, using keyword fallback")
		return RoutingDecision{
			AgentCalled: ir.keywordFallback(userIntent),
			Payload: map[string]interface{}{
				"message": userIntent,
				"note":    "fallback due to classifier error",
				"error":   err.Error(),
			},
		}, nil
	}

	out := ParseClassifierOutput(raw)
	canonical := ir.resolver.Resolve(ctx, out.Raw())
	return RoutingDecision{
		AgentCalled: canonical,
		Payload: map[string]interface{}{
			"message": userIntent,
		},
	}, nil
}

// classify calls the classifier with bounded retry and exponential backoff.
func (ir *IntentRouter) classify(ctx context.Context, text string) (string, error) {
	backoff := ir.retry.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= ir.retry.MaxAttempts; attempt++ {
		raw, err := ir.classifier.Classify(ctx, text)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		ir.logger.Debug().Err(err).Int("attempt", attempt).Msg("Classifier attempt failed")
		if attempt == ir.retry.MaxAttempts {
			break
		}
		if err := ir.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if ir.retry.BackoffMax > 0 && backoff > ir.retry.BackoffMax {
			backoff = ir.retry.BackoffMax
		}
	}
	return "", lastErr
}

// keywordFallback is the deterministic rule applied when the classifier is
// unavailable: scan the lowercased intent for domain terms, first table entry
// wins, else Unknown.
func (ir *IntentRouter) keywordFallback(userIntent string) string {
	text := strings.ToLower(userIntent)
	rules := []struct {
		agent    string
		keywords []string
	}{
		{"consulta_financeira", []string{"invest", "financ", "saldo"}},
		{"assessoria", []string{"assessor"}},
		{"agendamento", []string{"agend", "reuni", "schedul"}},
	}
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.agent
			}
		}
	}
	return Unknown
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
