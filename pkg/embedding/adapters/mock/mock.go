// Package mock implements a deterministic embedding.Service for testing
// and development. Vectors are bag-of-words projections, so texts that
// share words have positive cosine similarity and identical texts map to
// identical vectors.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// MockService is a deterministic, offline embedding service.
type MockService struct {
	dimensions int

	mu sync.Mutex
	// embedCount tracks provider calls, letting cache tests assert misses
	embedCount int

	// failErr, when set, is returned by every Embed call
	failErr error
}

// NewMockService creates a mock embedder producing vectors of the given
// dimensionality.
func NewMockService(dimensions int) *MockService {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockService{dimensions: dimensions}
}

// Embed implements the embedding.Service interface.
func (m *MockService) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCount++
	err := m.failErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vector := make([]float32, m.dimensions)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vector[int(h.Sum32())%m.dimensions]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector, nil
}

// Dimensions implements the embedding.Service interface.
func (m *MockService) Dimensions() int {
	return m.dimensions
}

// EmbedCount returns how many Embed calls have reached the service.
func (m *MockService) EmbedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCount
}

// SetError makes every subsequent Embed call fail with err (nil clears it).
func (m *MockService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
