// Package embedding defines the text-to-vector service contract and a
// TTL cache that deduplicates expensive provider calls.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Service is the interface for embedding providers. Implementations
// carry no retry logic of their own; resilience is the caller's concern.
type Service interface {
	// Embed converts text into a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector dimensionality this service produces.
	Dimensions() int
}

// ContentHash returns a stable hex digest of text, used as the cache key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
