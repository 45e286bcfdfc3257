// Package shortterm implements the per-session conversation log: an
// append-only, strictly ordered message list with a sliding TTL and
// token-budgeted retrieval.
package shortterm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// Message is a single conversation entry within a session.
type Message struct {
	// SessionID identifies the conversation this message belongs to
	SessionID string `json:"session_id"`

	// Role is the speaker ("user", "assistant", "tool")
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`

	// Timestamp is when the message was appended
	Timestamp time.Time `json:"timestamp"`
}

// ContextStats describes the result of token-aware retrieval.
type ContextStats struct {
	// MessageCount is the number of messages retained after trimming
	MessageCount int

	// TokenCount is the estimated token total of the retained messages
	TokenCount int

	// UsagePercent is TokenCount relative to the budget, in percent
	UsagePercent float64

	// IsOverThreshold is true only when the minimum-retention floor
	// forced the context over the token budget
	IsOverThreshold bool
}

// Config contains configuration options for the short-term store.
type Config struct {
	// MaxTokens is the default token budget for token-aware retrieval
	MaxTokens int

	// MinMessagesToKeep is the floor on retained messages when trimming
	MinMessagesToKeep int

	// SessionTTL is the sliding session lifetime, refreshed on each write
	SessionTTL time.Duration
}

// DefaultConfig returns the default short-term store configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         2000,
		MinMessagesToKeep: 4,
		SessionTTL:        24 * time.Hour,
	}
}

// Store is the short-term conversation store. Appends are strictly
// ordered per session; there is a single logical writer sequence per
// session key.
type Store struct {
	backend backend.Store
	config  Config
}

// NewStore creates a short-term store over the given backend.
func NewStore(b backend.Store, config Config) *Store {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.MinMessagesToKeep <= 0 {
		config.MinMessagesToKeep = DefaultConfig().MinMessagesToKeep
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultConfig().SessionTTL
	}
	return &Store{backend: b, config: config}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("short:%s:messages", sessionID)
}

// EstimateTokens approximates the token count of text. The corpus carries
// no tokenizer, so a chars/4 heuristic stands in; it only drives trimming,
// never billing.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Append adds a message to the session log and refreshes the session TTL.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) error {
	if sessionID == "" {
		return errors.Wrap(errors.ErrValidation, "session id cannot be empty")
	}
	if role == "" {
		return errors.Wrap(errors.ErrValidation, "role cannot be empty")
	}

	message := Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := s.backend.ListAppend(ctx, sessionKey(sessionID), data, s.config.SessionTTL); err != nil {
		return errors.Wrap(err, "failed to append message")
	}

	log.DebugContext(ctx, "Appended short-term message",
		"session_id", sessionID,
		"role", role,
		"content_length", len(content),
	)
	return nil
}

func (s *Store) readMessages(ctx context.Context, sessionID string, start, stop int) ([]Message, error) {
	raw, err := s.backend.ListRange(ctx, sessionKey(sessionID), start, stop)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read session log")
	}

	messages := make([]Message, 0, len(raw))
	for _, data := range raw {
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.WarnContext(ctx, "Skipping undecodable message", "session_id", sessionID, "error", err)
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// GetContext returns up to limit most recent messages, oldest first.
// limit <= 0 returns the whole session log.
func (s *Store) GetContext(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	start := 0
	if limit > 0 {
		start = -limit
	}
	return s.readMessages(ctx, sessionID, start, -1)
}

// GetContextTokenAware returns the most recent messages that fit within
// maxTokens, oldest first, dropping oldest messages first but always
// retaining at least MinMessagesToKeep when that many exist. maxTokens
// <= 0 uses the configured budget.
func (s *Store) GetContextTokenAware(ctx context.Context, sessionID string, maxTokens int) ([]Message, ContextStats, error) {
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}

	all, err := s.readMessages(ctx, sessionID, 0, -1)
	if err != nil {
		return nil, ContextStats{}, err
	}

	// Walk newest to oldest, keeping messages while the budget holds or
	// the retention floor requires more
	kept := 0
	tokens := 0
	for i := len(all) - 1; i >= 0; i-- {
		cost := EstimateTokens(all[i].Content)
		if kept >= s.config.MinMessagesToKeep && tokens+cost > maxTokens {
			break
		}
		if kept < s.config.MinMessagesToKeep || tokens+cost <= maxTokens {
			kept++
			tokens += cost
			continue
		}
		break
	}

	messages := all[len(all)-kept:]
	stats := ContextStats{
		MessageCount:    kept,
		TokenCount:      tokens,
		UsagePercent:    float64(tokens) / float64(maxTokens) * 100,
		IsOverThreshold: tokens > maxTokens,
	}

	log.DebugContext(ctx, "Token-aware context built",
		"session_id", sessionID,
		"total_messages", len(all),
		"kept_messages", kept,
		"token_count", tokens,
		"max_tokens", maxTokens,
	)
	return messages, stats, nil
}

// Clear removes the session log.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.backend.Delete(ctx, sessionKey(sessionID)); err != nil {
		return errors.Wrap(err, "failed to clear session")
	}
	return nil
}
