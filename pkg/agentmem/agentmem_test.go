package agentmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalmind/agentmem/pkg/agent"
	"github.com/vitalmind/agentmem/pkg/agentmem"
	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/config"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
	"github.com/vitalmind/agentmem/pkg/tools"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Backend.Type = "mock"
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 64
	cfg.LLM.Provider = "mock"
	return cfg
}

func newTestClient(t *testing.T) *agentmem.Client {
	t.Helper()

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.NewCalculatorTool()))

	client, err := agentmem.New(mockConfig(), registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewWithMockProviders(t *testing.T) {
	client := newTestClient(t)

	assert.True(t, client.Healthy(context.Background()))
	assert.Equal(t, backend.BreakerClosed, client.BreakerState())
}

func TestProcessTurnEndToEnd(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	result, err := client.ProcessTurn(ctx, "u1", "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, result.State)
	assert.NotEmpty(t, result.Response)

	// The turn is in the conversation log for the next retrieval
	memCtx, err := client.RetrieveContext(ctx, "u1", "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, memCtx.ContextStats.MessageCount)
}

func TestLoadKnowledgeAndRetrieve(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	fact := "Adults should drink roughly two liters of water per day"
	loaded, err := client.LoadKnowledge(ctx, []semantic.Fact{{
		Category: "nutrition",
		Fact:     fact,
		Source:   "general guidelines",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	memCtx, err := client.RetrieveContext(ctx, "u1", "s1", fact)
	require.NoError(t, err)
	require.NotNil(t, memCtx.Semantic)
	assert.GreaterOrEqual(t, memCtx.Semantic.HitCount, 1)
}

func TestClearSession(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.ProcessTurn(ctx, "u1", "s1", "hello")
	require.NoError(t, err)
	require.NoError(t, client.ClearSession(ctx, "s1"))

	memCtx, err := client.RetrieveContext(ctx, "u1", "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, memCtx.ContextStats.MessageCount)
}

func TestClearUserMemory(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// A goal statement is memorable and lands in the episodic store
	goal := "My goal is to run a marathon next year"
	_, err := client.ProcessTurn(ctx, "u1", "s1", goal)
	require.NoError(t, err)

	removed, err := client.ClearUserMemory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	cfg := mockConfig()
	cfg.Backend.Type = "cassandra"
	_, err := agentmem.New(cfg, nil)
	assert.Error(t, err)

	cfg = mockConfig()
	cfg.Embedding.Provider = "vertex"
	_, err = agentmem.New(cfg, nil)
	assert.Error(t, err)

	cfg = mockConfig()
	cfg.LLM.Provider = "bedrock"
	_, err = agentmem.New(cfg, nil)
	assert.Error(t, err)
}

func TestNewDefaultsWhenNil(t *testing.T) {
	cfg := mockConfig()
	client, err := agentmem.New(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	result, err := client.ProcessTurn(context.Background(), "u1", "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, result.State)
}
