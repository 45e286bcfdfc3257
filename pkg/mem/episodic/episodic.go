// Package episodic implements the per-user event store: discrete,
// immutable facts about a user retrieved by vector similarity, written
// only when a turn is judged memorable.
package episodic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/embedding"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// EventType classifies an episodic event.
type EventType string

// Event types
const (
	EventPreference  EventType = "preference"
	EventGoal        EventType = "goal"
	EventHealthEvent EventType = "health_event"
	EventInteraction EventType = "interaction"
	EventMilestone   EventType = "milestone"
)

// Event is a single episodic memory. Events are immutable once stored
// and expire via a long TTL; they are retrieved by similarity, never by key.
type Event struct {
	// ID is a unique identifier, generated when absent
	ID string

	// UserID is the user this event belongs to
	UserID string

	// Type classifies the event
	Type EventType

	// Timestamp is when the event occurred
	Timestamp time.Time

	// Description is the text that gets embedded and searched
	Description string

	// Context is surrounding conversation detail preserved for prompts
	Context string

	// Metadata is additional structured data about the event
	Metadata map[string]string
}

// Hit is a retrieved event with its similarity to the query.
type Hit struct {
	Event      Event
	Similarity float64
}

// Result is the outcome of a retrieval.
type Result struct {
	// Hits are the matched events, ranked by similarity descending
	Hits []Hit

	// Summary is a prompt-ready rendering of the hits
	Summary string

	// HitCount is len(Hits)
	HitCount int
}

// RetrieveOptions overrides store defaults for a single retrieval.
type RetrieveOptions struct {
	// TopK limits the number of hits (0 = store default)
	TopK int

	// SimilarityThreshold filters weaker hits (0 = store default)
	SimilarityThreshold float64

	// EventType restricts hits to one event type when non-empty
	EventType EventType
}

// Config contains configuration options for the episodic store.
type Config struct {
	// TTL is the event lifetime (default 180 days)
	TTL time.Duration

	// TopK is the default number of hits returned
	TopK int

	// SimilarityThreshold filters hits below this cosine similarity
	SimilarityThreshold float64
}

// DefaultConfig returns the default episodic store configuration.
func DefaultConfig() Config {
	return Config{
		TTL:                 180 * 24 * time.Hour,
		TopK:                5,
		SimilarityThreshold: 0.3,
	}
}

// Store is the episodic memory store.
type Store struct {
	backend  backend.Store
	embedder *embedding.Cache
	config   Config
}

// NewStore creates an episodic store over the given backend and embedder.
func NewStore(b backend.Store, embedder *embedding.Cache, config Config) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Store{backend: b, embedder: embedder, config: config}
}

func namespace(userID string) string {
	return fmt.Sprintf("epis:%s", userID)
}

// Store persists an event: embeds the description (cache-assisted),
// validates dimensionality, and upserts it under the user's namespace.
// Returns the event ID.
func (s *Store) Store(ctx context.Context, event Event) (string, error) {
	if event.UserID == "" {
		return "", errors.Wrap(errors.ErrValidation, "user id cannot be empty")
	}
	if event.Description == "" {
		return "", errors.Wrap(errors.ErrValidation, "description cannot be empty")
	}
	if event.Type == "" {
		event.Type = EventInteraction
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	vector, err := s.embedder.GetOrGenerate(ctx, event.Description)
	if err != nil {
		return "", err
	}
	if dims := s.embedder.Dimensions(); len(vector) != dims {
		return "", errors.Wrap(errors.ErrValidation,
			"embedding has %d dimensions, store requires %d", len(vector), dims)
	}

	metadata := map[string]string{
		"user_id":    event.UserID,
		"event_type": string(event.Type),
		"timestamp":  event.Timestamp.Format(time.RFC3339),
		"context":    event.Context,
	}
	for k, v := range event.Metadata {
		metadata["meta_"+k] = v
	}

	record := backend.VectorRecord{
		ID:        event.ID,
		Content:   event.Description,
		Embedding: vector,
		Metadata:  metadata,
		TTL:       s.config.TTL,
	}

	if err := s.backend.VectorUpsert(ctx, namespace(event.UserID), record); err != nil {
		return "", errors.Wrap(err, "failed to store episodic event")
	}

	log.DebugContext(ctx, "Stored episodic event",
		"user_id", event.UserID,
		"event_id", event.ID,
		"event_type", event.Type,
	)
	return event.ID, nil
}

// Retrieve embeds the query, searches the user's namespace, ranks by
// similarity, truncates to top-k, and renders a summary for the prompt.
func (s *Store) Retrieve(ctx context.Context, userID, queryText string, opts RetrieveOptions) (*Result, error) {
	if queryText == "" {
		return &Result{Hits: []Hit{}, Summary: ""}, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.config.TopK
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = s.config.SimilarityThreshold
	}

	vector, err := s.embedder.GetOrGenerate(ctx, queryText)
	if err != nil {
		return nil, err
	}

	var filters map[string]string
	if opts.EventType != "" {
		filters = map[string]string{"event_type": string(opts.EventType)}
	}

	raw, err := s.backend.VectorSearch(ctx, namespace(userID), vector, topK, filters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search episodic events")
	}

	hits := make([]Hit, 0, len(raw))
	for _, h := range raw {
		if h.Similarity < threshold {
			continue
		}
		hits = append(hits, Hit{Event: eventFromRecord(h.Record), Similarity: h.Similarity})
	}

	result := &Result{
		Hits:     hits,
		Summary:  renderSummary(hits),
		HitCount: len(hits),
	}

	log.DebugContext(ctx, "Retrieved episodic events",
		"user_id", userID,
		"hit_count", len(hits),
		"top_k", topK,
	)
	return result, nil
}

// Clear removes every event for the user and returns how many were removed.
func (s *Store) Clear(ctx context.Context, userID string) (int, error) {
	removed, err := s.backend.VectorClear(ctx, namespace(userID))
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear episodic events")
	}
	return removed, nil
}

func eventFromRecord(record backend.VectorRecord) Event {
	event := Event{
		ID:          record.ID,
		UserID:      record.Metadata["user_id"],
		Type:        EventType(record.Metadata["event_type"]),
		Description: record.Content,
		Context:     record.Metadata["context"],
	}
	if ts, err := time.Parse(time.RFC3339, record.Metadata["timestamp"]); err == nil {
		event.Timestamp = ts
	}
	for k, v := range record.Metadata {
		if strings.HasPrefix(k, "meta_") {
			if event.Metadata == nil {
				event.Metadata = make(map[string]string)
			}
			event.Metadata[strings.TrimPrefix(k, "meta_")] = v
		}
	}
	return event
}

func renderSummary(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant past events:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, hit.Event.Type, hit.Event.Description)
		if hit.Event.Context != "" {
			fmt.Fprintf(&b, " (%s)", hit.Event.Context)
		}
		if !hit.Event.Timestamp.IsZero() {
			fmt.Fprintf(&b, " (%s)", hit.Event.Timestamp.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
