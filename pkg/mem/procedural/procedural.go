// Package procedural implements the learned tool-pattern store. Patterns
// are keyed by an exact hash of the normalized query text: lookups are
// O(1) and need no embedding, at the deliberate cost of never matching
// semantically similar but textually different queries.
package procedural

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// patternsKey is the backend hash holding every pattern, one field per key.
const patternsKey = "proc:global:patterns"

// Pattern is a learned tool sequence for a normalized query shape.
type Pattern struct {
	// Key is the hash of the normalized query
	Key string `json:"key"`

	// ToolSequence is the ordered tool names that served this query
	ToolSequence []string `json:"tool_sequence"`

	// ExecutionCount is how many times this pattern has been recorded
	ExecutionCount int `json:"execution_count"`

	// AvgSuccessScore is the running average success score in [0, 1]
	AvgSuccessScore float64 `json:"avg_success_score"`

	// AvgExecutionTimeMs is the running average execution time
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`

	// CreatedAt is when the pattern was first recorded
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the pattern was last recorded
	LastUsedAt time.Time `json:"last_used_at"`
}

// Suggestion is the outcome of a successful lookup.
type Suggestion struct {
	// ToolSequence is the learned tool order
	ToolSequence []string

	// Confidence is min(avg_success_score * (1 + execution_count/10), 1.0)
	Confidence float64

	// Recommended is true when Confidence meets the configured threshold
	Recommended bool
}

// Config contains configuration options for the procedural store.
type Config struct {
	// RecommendThreshold is the confidence at or above which a
	// suggestion is marked recommended (default 0.7)
	RecommendThreshold float64
}

// DefaultConfig returns the default procedural store configuration.
func DefaultConfig() Config {
	return Config{RecommendThreshold: 0.7}
}

// Store is the procedural memory store. Patterns never expire.
type Store struct {
	backend backend.Store
	config  Config
}

// NewStore creates a procedural store over the given backend.
func NewStore(b backend.Store, config Config) *Store {
	if config.RecommendThreshold <= 0 {
		config.RecommendThreshold = DefaultConfig().RecommendThreshold
	}
	return &Store{backend: b, config: config}
}

// NormalizeQuery lowercases the query and collapses whitespace so that
// trivially different spellings share a pattern key.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// PatternKey returns the stable hash key for a query.
func PatternKey(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:16])
}

// Confidence computes pattern confidence from its running average and
// execution count.
func Confidence(avgSuccessScore float64, executionCount int) float64 {
	confidence := avgSuccessScore * (1 + float64(executionCount)/10)
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Suggest looks up the pattern for queryText by exact key match. It
// returns nil when no pattern exists.
func (s *Store) Suggest(ctx context.Context, queryText string) (*Suggestion, error) {
	key := PatternKey(queryText)

	data, err := s.backend.HashGet(ctx, patternsKey, key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up pattern")
	}

	var pattern Pattern
	if err := json.Unmarshal(data, &pattern); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pattern: %w", err)
	}

	confidence := Confidence(pattern.AvgSuccessScore, pattern.ExecutionCount)
	suggestion := &Suggestion{
		ToolSequence: pattern.ToolSequence,
		Confidence:   confidence,
		Recommended:  confidence >= s.config.RecommendThreshold,
	}

	log.DebugContext(ctx, "Pattern suggestion",
		"key", key,
		"confidence", confidence,
		"recommended", suggestion.Recommended,
	)
	return suggestion, nil
}

// Record upserts the pattern for queryText, folding the new observation
// into the running averages.
func (s *Store) Record(ctx context.Context, queryText string, toolSequence []string, executionTimeMs int64, successScore float64) error {
	if len(toolSequence) == 0 {
		return errors.Wrap(errors.ErrValidation, "tool sequence cannot be empty")
	}
	if successScore < 0 || successScore > 1 {
		return errors.Wrap(errors.ErrValidation, "success score must be in [0, 1], got %v", successScore)
	}

	key := PatternKey(queryText)
	now := time.Now().UTC()

	var pattern Pattern
	data, err := s.backend.HashGet(ctx, patternsKey, key)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		pattern = Pattern{
			Key:                key,
			ToolSequence:       toolSequence,
			ExecutionCount:     1,
			AvgSuccessScore:    successScore,
			AvgExecutionTimeMs: float64(executionTimeMs),
			CreatedAt:          now,
			LastUsedAt:         now,
		}
	case err != nil:
		return errors.Wrap(err, "failed to read pattern")
	default:
		if err := json.Unmarshal(data, &pattern); err != nil {
			return fmt.Errorf("failed to unmarshal pattern: %w", err)
		}
		oldCount := float64(pattern.ExecutionCount)
		pattern.AvgSuccessScore = (pattern.AvgSuccessScore*oldCount + successScore) / (oldCount + 1)
		pattern.AvgExecutionTimeMs = (pattern.AvgExecutionTimeMs*oldCount + float64(executionTimeMs)) / (oldCount + 1)
		pattern.ExecutionCount++
		pattern.ToolSequence = toolSequence
		pattern.LastUsedAt = now
	}

	updated, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern: %w", err)
	}

	if err := s.backend.HashSet(ctx, patternsKey, key, updated); err != nil {
		return errors.Wrap(err, "failed to store pattern")
	}

	log.DebugContext(ctx, "Recorded tool pattern",
		"key", key,
		"execution_count", pattern.ExecutionCount,
		"avg_success_score", pattern.AvgSuccessScore,
	)
	return nil
}
