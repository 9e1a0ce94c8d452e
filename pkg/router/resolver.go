// Package router turns free-text user intent into a routing decision:
// a canonical agent name plus the payload handed to that agent. It owns the
// synonym tables, so any code that needs to know the valid agent names asks
// this package instead of keeping its own list.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/internal/metrics"
	"github.com/orquestra-labs/orquestra/pkg/store"
)

// Unknown is the canonical result when no agent matches.
const Unknown = "unknown"

// Store keys for fallback telemetry, kept for synonym-table tuning.
const (
	fallbackCountKey  = "router:fallback_count"
	fallbackRawPrefix = "router:fallback:raw:"
)

// SynonymEntry binds one canonical agent name to its accepted synonyms. The
// entry order is load-bearing: substring matching is resolved by first match
// over this list, not by any scoring.
type SynonymEntry struct {
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms"`
}

// DefaultTable is the stock mapping for the three registered agents.
func DefaultTable() []SynonymEntry {
	return []SynonymEntry{
		{
			Name:     "assessoria",
			Synonyms: []string{"assessoria", "assessor", "agente de assessoria"},
		},
		{
			Name: "consulta_financeira",
			Synonyms: []string{
				"consulta_financeira",
				"consulta-financeira",
				"financeiro",
				"finance",
				"financ",
				"invest",
				"investimentos",
				"agente de financeiro",
				"agente financeiro",
			},
		},
		{
			Name: "agendamento",
			Synonyms: []string{
				"agendamento",
				"agenda",
				"agendar",
				"schedule",
				"scheduling",
				"marcar reuniao",
				"agente de agendamento",
			},
		},
	}
}

// Resolver canonicalizes raw classifier output into a registered agent name
// or Unknown. Unresolvable inputs are counted in the store and in Prometheus
// so the synonym table can be tuned over time; counting failures never
// propagate.
type Resolver struct {
	mu      sync.RWMutex
	table   []SynonymEntry
	kv      store.KeyValue // nil disables store-side telemetry
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a resolver over table. kv and m may be nil.
func NewResolver(table []SynonymEntry, kv store.KeyValue, logger zerolog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		table:   table,
		kv:      kv,
		logger:  logger,
		metrics: m,
	}
}

// CanonicalNames returns the agent names in table order.
func (r *Resolver) CanonicalNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.table))
	for i, e := range r.table {
		names[i] = e.Name
	}
	return names
}

// ReplaceTable swaps in a new synonym table. Used by the file watcher.
func (r *Resolver) ReplaceTable(table []SynonymEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = table
}

// Resolve applies the matching rules in strict precedence order: exact
// canonical name, exact synonym, then substring in either direction with
// first-entry-wins tie-breaking. Anything else resolves to Unknown.
func (r *Resolver) Resolve(ctx context.Context, raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Unknown
	}

	r.mu.RLock()
	table := r.table
	r.mu.RUnlock()

	for _, e := range table {
		if s == e.Name {
			return e.Name
		}
	}
	for _, e := range table {
		for _, syn := range e.Synonyms {
			if s == syn {
				return e.Name
			}
		}
	}
	for _, e := range table {
		for _, syn := range e.Synonyms {
			if strings.Contains(s, syn) || strings.Contains(syn, s) {
				return e.Name
			}
		}
	}

	r.logger.Warn().Str("raw", raw).Msg("Router fallback: could not resolve agent")
	r.metrics.RecordRouterFallback(s)
	if r.kv != nil {
		if _, err := r.kv.Increment(ctx, fallbackCountKey); err != nil {
			r.logger.Debug().Err(err).Msg("Fallback counter increment failed")
		}
		if _, err := r.kv.Increment(ctx, fallbackRawPrefix+s); err != nil {
			r.logger.Debug().Err(err).Msg("Fallback raw counter increment failed")
		}
	}
	return Unknown
}

// ValidateTable rejects tables that cannot be used for routing.
func ValidateTable(table []SynonymEntry) error {
	if len(table) == 0 {
		return fmt.Errorf("synonym table is empty")
	}
	seen := make(map[string]bool, len(table))
	for _, e := range table {
		if e.Name == "" {
			return fmt.Errorf("synonym entry with empty name")
		}
		if e.Name == Unknown {
			return fmt.Errorf("%q is reserved", Unknown)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate canonical name %q", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}
