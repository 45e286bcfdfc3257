package semantic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backendmock "github.com/vitalmind/agentmem/pkg/backend/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/embedding"
	embeddermock "github.com/vitalmind/agentmem/pkg/embedding/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
)

func newTestStore(t *testing.T) *semantic.Store {
	t.Helper()
	cache, err := embedding.NewCache(embeddermock.NewMockService(64), embedding.DefaultCacheConfig())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	return semantic.NewStore(backendmock.NewMockStore(), cache, semantic.Config{
		TopK:                5,
		SimilarityThreshold: 0.1,
	})
}

func sampleFacts() []semantic.Fact {
	return []semantic.Fact{
		{
			Category: "nutrition",
			FactType: "guideline",
			Fact:     "Adults should drink roughly two liters of water per day",
			Source:   "general guidelines",
		},
		{
			Category: "exercise",
			FactType: "guideline",
			Fact:     "Strength training twice a week preserves muscle mass",
			Source:   "general guidelines",
		},
	}
}

func TestBulkLoadAndSelfRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loaded, err := store.BulkLoad(ctx, sampleFacts())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	result, err := store.Retrieve(ctx, "Adults should drink roughly two liters of water per day", semantic.RetrieveOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.HitCount, 1)
	assert.Contains(t, result.Hits[0].Fact.Fact, "two liters of water")
	assert.InDelta(t, 1.0, result.Hits[0].Similarity, 0.001)
}

func TestRetrieveCategoryFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.BulkLoad(ctx, sampleFacts())
	require.NoError(t, err)

	result, err := store.Retrieve(ctx, "guidelines for water and training", semantic.RetrieveOptions{
		Category:            "exercise",
		SimilarityThreshold: 0.01,
	})
	require.NoError(t, err)
	for _, hit := range result.Hits {
		assert.Equal(t, "exercise", hit.Fact.Category)
	}
}

func TestRetrieveSummaryIncludesSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.BulkLoad(ctx, sampleFacts())
	require.NoError(t, err)

	result, err := store.Retrieve(ctx, "Strength training twice a week preserves muscle mass", semantic.RetrieveOptions{})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "Strength training")
	assert.Contains(t, result.Summary, "general guidelines")
}

func TestBulkLoadValidatesFactText(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.BulkLoad(context.Background(), []semantic.Fact{{Fact: ""}})
	assert.Error(t, err)
	assert.Equal(t, 0, loaded)
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.BulkLoad(ctx, sampleFacts())
	require.NoError(t, err)

	removed, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	result, err := store.Retrieve(ctx, "water", semantic.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.HitCount)
}
