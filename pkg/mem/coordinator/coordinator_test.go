package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backendmock "github.com/vitalmind/agentmem/pkg/backend/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/embedding"
	embeddermock "github.com/vitalmind/agentmem/pkg/embedding/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/mem/coordinator"
	"github.com/vitalmind/agentmem/pkg/mem/episodic"
	"github.com/vitalmind/agentmem/pkg/mem/procedural"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
	"github.com/vitalmind/agentmem/pkg/mem/shortterm"
)

// fixture wires all four stores; shortTermBackend is separate so tests
// can fail the conversation log independently of the vector stores.
type fixture struct {
	coord            *coordinator.Coordinator
	shortTermBackend *backendmock.MockStore
	vectorBackend    *backendmock.MockStore
	episodic         *episodic.Store
	procedural       *procedural.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	shortTermBackend := backendmock.NewMockStore()
	vectorBackend := backendmock.NewMockStore()

	cache, err := embedding.NewCache(embeddermock.NewMockService(64), embedding.DefaultCacheConfig())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	episodicStore := episodic.NewStore(vectorBackend, cache, episodic.Config{
		TTL:                 time.Hour,
		TopK:                5,
		SimilarityThreshold: 0.05,
	})
	proceduralStore := procedural.NewStore(vectorBackend, procedural.DefaultConfig())

	coord := coordinator.New(coordinator.Stores{
		ShortTerm: shortterm.NewStore(shortTermBackend, shortterm.DefaultConfig()),
		Episodic:  episodicStore,
		Semantic: semantic.NewStore(vectorBackend, cache, semantic.Config{
			TTL:                 time.Hour,
			TopK:                5,
			SimilarityThreshold: 0.05,
		}),
		Procedural: proceduralStore,
	})

	return &fixture{
		coord:            coord,
		shortTermBackend: shortTermBackend,
		vectorBackend:    vectorBackend,
		episodic:         episodicStore,
		procedural:       proceduralStore,
	}
}

func TestRetrieveAllContextAggregatesAllStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	query := "User wants to train for a marathon"

	require.NoError(t, f.coord.StoreInteraction(ctx, coordinator.Interaction{
		UserID:       "u1",
		SessionID:    "s1",
		UserMessage:  "hello there",
		AssistantMsg: "hi, how can I help?",
	}))

	_, err := f.episodic.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventGoal,
		Description: query,
	})
	require.NoError(t, err)

	require.NoError(t, f.procedural.Record(ctx, query, []string{"get_workouts"}, 100, 0.9))

	memCtx, err := f.coord.RetrieveAllContext(ctx, "u1", "s1", query)
	require.NoError(t, err)

	assert.Empty(t, memCtx.Unavailable)
	assert.Len(t, memCtx.Messages, 2)
	assert.Equal(t, 2, memCtx.ContextStats.MessageCount)

	require.NotNil(t, memCtx.Episodic)
	assert.GreaterOrEqual(t, memCtx.Episodic.HitCount, 1)

	require.NotNil(t, memCtx.Suggestion)
	assert.Equal(t, []string{"get_workouts"}, memCtx.Suggestion.ToolSequence)
}

func TestRetrieveAllContextIsolatesStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	query := "User wants to train for a marathon"
	_, err := f.episodic.Store(ctx, episodic.Event{
		UserID:      "u1",
		Type:        episodic.EventGoal,
		Description: query,
	})
	require.NoError(t, err)

	// Conversation log down, vector stores healthy
	f.shortTermBackend.SetFailAll(true)

	memCtx, err := f.coord.RetrieveAllContext(ctx, "u1", "s1", query)
	require.NoError(t, err)

	assert.Contains(t, memCtx.Unavailable, coordinator.StoreShortTerm)
	assert.Empty(t, memCtx.Messages)

	require.NotNil(t, memCtx.Episodic)
	assert.GreaterOrEqual(t, memCtx.Episodic.HitCount, 1)
}

func TestRetrieveAllContextAllStoresDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.shortTermBackend.SetFailAll(true)
	f.vectorBackend.SetFailAll(true)

	memCtx, err := f.coord.RetrieveAllContext(ctx, "u1", "s1", "anything")
	require.NoError(t, err)
	assert.Len(t, memCtx.Unavailable, 4)
}

func TestRetrieveAllContextValidatesIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.RetrieveAllContext(context.Background(), "", "s1", "q")
	assert.Error(t, err)

	_, err = f.coord.RetrieveAllContext(context.Background(), "u1", "", "q")
	assert.Error(t, err)
}

func TestStoreInteractionMemorableWritesEpisodic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userMsg := "My goal is to weigh 125 lbs by December"
	require.NoError(t, f.coord.StoreInteraction(ctx, coordinator.Interaction{
		UserID:       "u1",
		SessionID:    "s1",
		UserMessage:  userMsg,
		AssistantMsg: "Got it, I'll keep that in mind.",
	}))

	result, err := f.episodic.Retrieve(ctx, "u1", userMsg, episodic.RetrieveOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.HitCount, 1)
	assert.Equal(t, episodic.EventGoal, result.Hits[0].Event.Type)
}

func TestStoreInteractionMundaneSkipsEpisodic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userMsg := "what time is it in Tokyo?"
	require.NoError(t, f.coord.StoreInteraction(ctx, coordinator.Interaction{
		UserID:       "u1",
		SessionID:    "s1",
		UserMessage:  userMsg,
		AssistantMsg: "It is 9pm in Tokyo.",
	}))

	result, err := f.episodic.Retrieve(ctx, "u1", userMsg, episodic.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.HitCount)
}

func TestStoreInteractionRecordsToolPattern(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.StoreInteraction(ctx, coordinator.Interaction{
		UserID:          "u1",
		SessionID:       "s1",
		UserMessage:     "show my recent workouts",
		AssistantMsg:    "Here they are.",
		ToolsUsed:       []string{"get_workouts", "summarize"},
		ExecutionTimeMs: 250,
		SuccessScore:    1.0,
	}))

	suggestion, err := f.procedural.Suggest(ctx, "show my recent workouts")
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	assert.Equal(t, []string{"get_workouts", "summarize"}, suggestion.ToolSequence)
}

func TestStoreInteractionNoToolsSkipsProcedural(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.StoreInteraction(ctx, coordinator.Interaction{
		UserID:       "u1",
		SessionID:    "s1",
		UserMessage:  "just chatting",
		AssistantMsg: "sure",
	}))

	suggestion, err := f.procedural.Suggest(ctx, "just chatting")
	require.NoError(t, err)
	assert.Nil(t, suggestion)
}

func TestStoreInteractionShortTermFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.shortTermBackend.SetFailAll(true)

	err := f.coord.StoreInteraction(context.Background(), coordinator.Interaction{
		UserID:       "u1",
		SessionID:    "s1",
		UserMessage:  "hello",
		AssistantMsg: "hi",
	})
	assert.Error(t, err)
}
