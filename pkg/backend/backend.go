package backend

import (
	"context"
	"time"
)

// VectorRecord represents a single entry in a vector namespace.
type VectorRecord struct {
	// ID is a unique identifier for the record within its namespace
	ID string

	// Content is the original text the embedding was generated from
	Content string

	// Embedding is the vector representation used for similarity search
	Embedding []float32

	// Metadata is additional structured data stored alongside the record
	Metadata map[string]string

	// TTL is how long the record lives; zero means no expiration
	TTL time.Duration
}

// VectorHit is a single similarity-search result.
type VectorHit struct {
	// Record is the matched record
	Record VectorRecord

	// Similarity is the cosine similarity to the query, in [-1, 1]
	Similarity float64
}

// Store is the interface all durable backend adapters must implement.
// It exposes namespaced KV with TTL, ordered list append/range, hash
// get/set, and top-k vector similarity search. Keys follow the
// {store}:{scope}:{...}:{discriminator} convention so namespaces never
// collide across memory stores.
type Store interface {
	// Set stores a value under key with the given TTL (zero = no expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get fetches the value under key. Returns errors.ErrNotFound when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// ListAppend appends a value to the ordered list under key and
	// refreshes the list's TTL.
	ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// ListRange returns list elements in insertion order. start and stop
	// are inclusive indices; negative indices count from the end, so
	// ListRange(ctx, key, 0, -1) returns the whole list.
	ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error)

	// ListLen returns the number of elements in the list under key.
	ListLen(ctx context.Context, key string) (int, error)

	// HashSet stores a field/value pair in the hash under key.
	HashSet(ctx context.Context, key, field string, value []byte) error

	// HashGet fetches a field from the hash under key. Returns
	// errors.ErrNotFound when the hash or field is absent.
	HashGet(ctx context.Context, key, field string) ([]byte, error)

	// VectorUpsert inserts or replaces a record in the given namespace.
	VectorUpsert(ctx context.Context, namespace string, record VectorRecord) error

	// VectorSearch returns the topK records in the namespace most similar
	// to the query embedding, ranked by similarity descending. Records
	// must match every filter entry when filters is non-empty.
	VectorSearch(ctx context.Context, namespace string, query []float32, topK int, filters map[string]string) ([]VectorHit, error)

	// VectorClear removes every record in the namespace and returns how
	// many were removed.
	VectorClear(ctx context.Context, namespace string) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
