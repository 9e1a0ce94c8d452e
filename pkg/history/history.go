// Package history records ordered, size-bounded, expiring conversation turns
// per session in the key-value store.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/pkg/store"
)

// Turn is one recorded message within a session. User turns carry only role,
// content, and timestamp; agent turns add the agent name (empty when no agent
// was recognized) and whether the execution succeeded.
type Turn struct {
	Role      string `json:"role"` // "user" or "agent"
	Agent     string `json:"agent,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"ts"`
}

// UserTurn builds a user turn without a timestamp; Append assigns it.
func UserTurn(content string) Turn {
	return Turn{Role: "user", Content: content}
}

// AgentTurn builds an agent turn. agent may be empty for the unknown sink.
func AgentTurn(agent string, success bool, content string) Turn {
	return Turn{Role: "agent", Agent: agent, Success: &success, Content: content}
}

// History reads and extends per-session turn lists. Every operation is
// best-effort: a broken store degrades history to empty rather than failing
// the request, since history is a convenience, not authoritative state.
type History struct {
	kv       store.KeyValue
	maxTurns int
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// Config bounds the stored history.
type Config struct {
	MaxTurns   int           // keep at most this many turns per session
	SessionTTL time.Duration // sessions idle longer than this read as empty
}

// DefaultConfig keeps the last 200 turns for 24 hours.
func DefaultConfig() Config {
	return Config{
		MaxTurns:   200,
		SessionTTL: 24 * time.Hour,
	}
}

// New creates a History over kv.
func New(kv store.KeyValue, cfg Config, logger zerolog.Logger) *History {
	if cfg.MaxTurns < 1 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	return &History{
		kv:       kv,
		maxTurns: cfg.MaxTurns,
		ttl:      cfg.SessionTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

// Append stamps the turn and pushes it onto the session's list, trimming to
// the configured maximum and refreshing the session TTL. An empty session id
// means the caller opted out of history.
func (h *History) Append(ctx context.Context, sessionID string, turn Turn) {
	if sessionID == "" {
		return
	}
	turn.Timestamp = h.now().Unix()
	data, err := json.Marshal(turn)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to encode turn")
		return
	}
	if err := h.kv.Append(ctx, sessionKey(sessionID), data, h.maxTurns, h.ttl); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to append turn")
	}
}

// Read returns the session's turns, oldest first. Malformed entries are
// skipped; store errors read as an empty session.
func (h *History) Read(ctx context.Context, sessionID string) []Turn {
	if sessionID == "" {
		return nil
	}
	raw, err := h.kv.ReadAll(ctx, sessionKey(sessionID))
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to read history")
		return nil
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal(item, &t); err != nil {
			h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Skipping malformed turn")
			continue
		}
		turns = append(turns, t)
	}
	return turns
}

// Clear deletes the session's history immediately.
func (h *History) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := h.kv.Delete(ctx, sessionKey(sessionID)); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}
