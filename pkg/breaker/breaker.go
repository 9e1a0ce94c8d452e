// Package breaker implements per-agent failure isolation on top of the
// key-value store. Repeated failures trip an open flag that expires on its
// own; while the flag is live the agent must not be invoked.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/internal/metrics"
	"github.com/orquestra-labs/orquestra/pkg/store"
)

// ErrCircuitOpen is the stable error callers receive when an invocation is
// rejected because the agent's circuit is open. Monitoring keys off it to
// tell "agent broken" apart from "agent refused".
var ErrCircuitOpen = errors.New("circuit_open: agent temporarily disabled due to repeated failures")

// Breaker tracks failures per agent name. All bookkeeping is best-effort:
// store errors are logged and swallowed, never surfaced, because breaker
// state must not be the reason a request fails. If the store is down,
// IsOpen answers false so a degraded store does not block all traffic.
type Breaker struct {
	kv          store.KeyValue
	maxFailures int
	openTTL     time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// Config holds breaker thresholds.
type Config struct {
	MaxFailures int           // consecutive failures before the circuit trips
	OpenTTL     time.Duration // how long a tripped circuit stays open
}

// DefaultConfig returns the stock thresholds: trip after 3 failures, stay
// open for 60 seconds.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 3,
		OpenTTL:     60 * time.Second,
	}
}

// New creates a breaker over kv. Metrics may be nil.
func New(kv store.KeyValue, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = DefaultConfig().MaxFailures
	}
	if cfg.OpenTTL <= 0 {
		cfg.OpenTTL = DefaultConfig().OpenTTL
	}
	return &Breaker{
		kv:          kv,
		maxFailures: cfg.MaxFailures,
		openTTL:     cfg.OpenTTL,
		logger:      logger,
		metrics:     m,
	}
}

func failureKey(agent string) string {
	return fmt.Sprintf("circuit:%s:failures", agent)
}

func openKey(agent string) string {
	return fmt.Sprintf("circuit:%s:open", agent)
}

// IsOpen reports whether the agent's circuit is currently open.
func (b *Breaker) IsOpen(ctx context.Context, agent string) bool {
	open, err := b.kv.Exists(ctx, openKey(agent))
	if err != nil {
		// Store down: prefer allowing calls over blocking all traffic.
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Circuit check failed, allowing call")
		return false
	}
	return open
}

// RecordFailure increments the agent's failure counter and trips the circuit
// once the counter reaches the threshold. The counter carries its own expiry
// of twice the open TTL, so failures spread out in time decay instead of
// accumulating forever.
func (b *Breaker) RecordFailure(ctx context.Context, agent string) {
	count, err := b.kv.Increment(ctx, failureKey(agent))
	if err != nil {
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Failed to record agent failure")
		return
	}
	if err := b.kv.Expire(ctx, failureKey(agent), 2*b.openTTL); err != nil {
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Failed to expire failure counter")
	}
	if count < int64(b.maxFailures) {
		return
	}
	if err := b.kv.SetFlag(ctx, openKey(agent), b.openTTL); err != nil {
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Failed to open circuit")
		return
	}
	// Counter resets so the next window starts clean after the flag expires.
	if err := b.kv.Delete(ctx, failureKey(agent)); err != nil {
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Failed to reset failure counter")
	}
	b.metrics.RecordCircuitOpened(agent)
	b.logger.Warn().
		Str("agent", agent).
		Int64("failures", count).
		Dur("open_ttl", b.openTTL).
		Msg("Circuit opened")
}

// RecordSuccess clears the failure counter and the open flag unconditionally.
// Calling it with no prior failures is a no-op.
func (b *Breaker) RecordSuccess(ctx context.Context, agent string) {
	if err := b.kv.Delete(ctx, failureKey(agent)); err != nil {
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Failed to clear failure counter")
	}
	if err := b.kv.Delete(ctx, openKey(agent)); err != nil {
		b.logger.Warn().Err(err).Str("agent", agent).Msg("Failed to clear open flag")
	}
}
