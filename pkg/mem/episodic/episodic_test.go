package episodic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backendmock "github.com/vitalmind/agentmem/pkg/backend/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/embedding"
	embeddermock "github.com/vitalmind/agentmem/pkg/embedding/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/mem/episodic"
)

func newTestStore(t *testing.T) (*episodic.Store, *backendmock.MockStore) {
	t.Helper()
	b := backendmock.NewMockStore()
	cache, err := embedding.NewCache(embeddermock.NewMockService(64), embedding.DefaultCacheConfig())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	store := episodic.NewStore(b, cache, episodic.Config{
		TTL:                 time.Hour,
		TopK:                5,
		SimilarityThreshold: 0.1,
	})
	return store, b
}

func TestStoreAndSelfRetrieve(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventPreference,
		Description: "User prefers morning workouts over evening sessions",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Querying with the exact stored text must return the record
	result, err := store.Retrieve(ctx, "u1", "User prefers morning workouts over evening sessions", episodic.RetrieveOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.HitCount, 1)
	assert.Equal(t, id, result.Hits[0].Event.ID)
	assert.InDelta(t, 1.0, result.Hits[0].Similarity, 0.001)
}

func TestRetrieveWeightGoalScenario(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventGoal,
		Description: "User's goal is 125 lbs by December",
	})
	require.NoError(t, err)
	_, err = store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventPreference,
		Description: "User dislikes cilantro in recipes",
	})
	require.NoError(t, err)

	result, err := store.Retrieve(ctx, "u1", "What's my weight goal?", episodic.RetrieveOptions{
		SimilarityThreshold: 0.05,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.HitCount, 1)
	assert.Contains(t, result.Hits[0].Event.Description, "125 lbs")
	assert.Greater(t, result.Hits[0].Similarity, 0.05)
}

func TestRetrieveIsolatedPerUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Description: "User ran a marathon in Berlin",
	})
	require.NoError(t, err)

	result, err := store.Retrieve(ctx, "u2", "User ran a marathon in Berlin", episodic.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.HitCount)
}

func TestRetrieveFiltersByEventType(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventGoal,
		Description: "User wants to run a marathon next spring",
	})
	require.NoError(t, err)
	_, err = store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventPreference,
		Description: "User wants to run in the mornings",
	})
	require.NoError(t, err)

	result, err := store.Retrieve(ctx, "u1", "run a marathon", episodic.RetrieveOptions{
		EventType: episodic.EventGoal,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.HitCount)
	assert.Equal(t, episodic.EventGoal, result.Hits[0].Event.Type)
}

func TestRetrieveSummaryIncludesDescriptions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventGoal,
		Description: "User aims for 10k steps daily",
		Context:     "mentioned during onboarding",
	})
	require.NoError(t, err)

	result, err := store.Retrieve(ctx, "u1", "User aims for 10k steps daily", episodic.RetrieveOptions{})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "10k steps")
	assert.Contains(t, result.Summary, "goal")
	assert.Contains(t, result.Summary, "mentioned during onboarding")
}

func TestStoreValidatesInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, episodic.Event{UserID: "", Description: "text"})
	assert.Error(t, err)

	_, err = store.Store(ctx, episodic.Event{UserID: "u1", Description: ""})
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, episodic.Event{UserID: "u1", Description: "something to forget"})
	require.NoError(t, err)

	removed, err := store.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	result, err := store.Retrieve(ctx, "u1", "something to forget", episodic.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.HitCount)
}
