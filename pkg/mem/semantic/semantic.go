// Package semantic implements the general-knowledge fact store. Facts
// are bulk-loaded administratively and read-only in the hot path; the
// agent never writes here per-interaction.
package semantic

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

// globalScope is the single namespace all knowledge facts share.
const globalScope = "sem:global"

// Fact is a single piece of general knowledge.
type Fact struct {
	// ID is a unique identifier, generated when absent
	ID string

	// Category groups facts, e.g. "nutrition", "exercise"
	Category string

	// FactType further classifies the fact within its category
	FactType string

	// Timestamp is when the fact was loaded
	Timestamp time.Time

	// Fact is the text that gets embedded and searched
	Fact string

	// Context is supporting detail preserved for prompts
	Context string

	// Source records where the fact came from
	Source string
}

// Hit is a retrieved fact with its similarity to the query.
type Hit struct {
	Fact       Fact
	Similarity float64
}

// Result is the outcome of a retrieval.
type Result struct {
	// Hits are the matched facts, ranked by similarity descending
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

	// Category restricts hits to one category when non-empty
	Category string
}

// Config contains configuration options for the semantic store.
type Config struct {
	// TTL is the fact lifetime (default 365 days)
	TTL time.Duration

	// TopK is the default number of hits returned
	TopK int

	// SimilarityThreshold filters hits below this cosine similarity
	SimilarityThreshold float64
}

// DefaultConfig returns the default semantic store configuration.
func DefaultConfig() Config {
	return Config{
		TTL:                 365 * 24 * time.Hour,
		TopK:                5,
		SimilarityThreshold: 0.3,
	}
}

// Store is the semantic knowledge store.
type Store struct {
	backend  backend.Store
	embedder *embedding.Cache
	config   Config
}

// NewStore creates a semantic store over the given backend and embedder.
func NewStore(b backend.Store, embedder *embedding.Cache, config Config) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Store{backend: b, embedder: embedder, config: config}
}

// BulkLoad stores a batch of facts. This is the administrative write
// path; it returns how many facts were loaded and stops at the first
// infrastructure error.
func (s *Store) BulkLoad(ctx context.Context, facts []Fact) (int, error) {
	loaded := 0
	for _, fact := range facts {
		if fact.Fact == "" {
			return loaded, errors.Wrap(errors.ErrValidation, "fact text cannot be empty")
		}
		if fact.ID == "" {
			fact.ID = uuid.New().String()
		}
		if fact.Timestamp.IsZero() {
			fact.Timestamp = time.Now().UTC()
		}

		vector, err := s.embedder.GetOrGenerate(ctx, fact.Fact)
		if err != nil {
			return loaded, err
		}
		if dims := s.embedder.Dimensions(); len(vector) != dims {
			return loaded, errors.Wrap(errors.ErrValidation,
				"embedding has %d dimensions, store requires %d", len(vector), dims)
		}

		record := backend.VectorRecord{
			ID:        fact.ID,
			Content:   fact.Fact,
			Embedding: vector,
			Metadata: map[string]string{
				"category":  fact.Category,
				"fact_type": fact.FactType,
				"timestamp": fact.Timestamp.Format(time.RFC3339),
				"context":   fact.Context,
				"source":    fact.Source,
			},
			TTL: s.config.TTL,
		}

		if err := s.backend.VectorUpsert(ctx, globalScope, record); err != nil {
			return loaded, errors.Wrap(err, "failed to store fact %q", fact.ID)
		}
		loaded++
	}

	log.InfoContext(ctx, "Bulk-loaded knowledge facts", "count", loaded)
	return loaded, nil
}

// Retrieve embeds the query, searches the global namespace, ranks by
// similarity, truncates to top-k, and renders a summary for the prompt.
func (s *Store) Retrieve(ctx context.Context, queryText string, opts RetrieveOptions) (*Result, error) {
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
	if opts.Category != "" {
		filters = map[string]string{"category": opts.Category}
	}

	raw, err := s.backend.VectorSearch(ctx, globalScope, vector, topK, filters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search knowledge facts")
	}

	hits := make([]Hit, 0, len(raw))
	for _, h := range raw {
		if h.Similarity < threshold {
			continue
		}
		hits = append(hits, Hit{Fact: factFromRecord(h.Record), Similarity: h.Similarity})
	}

	result := &Result{
		Hits:     hits,
		Summary:  renderSummary(hits),
		HitCount: len(hits),
	}

	log.DebugContext(ctx, "Retrieved knowledge facts", "hit_count", len(hits), "top_k", topK)
	return result, nil
}

// Clear removes every fact and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	removed, err := s.backend.VectorClear(ctx, globalScope)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear knowledge facts")
	}
	return removed, nil
}

func factFromRecord(record backend.VectorRecord) Fact {
	fact := Fact{
		ID:       record.ID,
		Category: record.Metadata["category"],
		FactType: record.Metadata["fact_type"],
		Fact:     record.Content,
		Context:  record.Metadata["context"],
		Source:   record.Metadata["source"],
	}
	if ts, err := time.Parse(time.RFC3339, record.Metadata["timestamp"]); err == nil {
		fact.Timestamp = ts
	}
	return fact
}

func renderSummary(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant knowledge:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s", i+1, hit.Fact.Fact)
		if hit.Fact.Source != "" {
			fmt.Fprintf(&b, " (source: %s)", hit.Fact.Source)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
