package agent_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalmind/agentmem/pkg/agent"
	backendmock "github.com/vitalmind/agentmem/pkg/backend/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/embedding"
	embeddermock "github.com/vitalmind/agentmem/pkg/embedding/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/mem/coordinator"
	"github.com/vitalmind/agentmem/pkg/mem/episodic"
	"github.com/vitalmind/agentmem/pkg/mem/procedural"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
	"github.com/vitalmind/agentmem/pkg/mem/shortterm"
	"github.com/vitalmind/agentmem/pkg/reasoning"
	enginemock "github.com/vitalmind/agentmem/pkg/reasoning/adapters/mock"
	"github.com/vitalmind/agentmem/pkg/tools"
)

type fixture struct {
	procedural *procedural.Store
	shortTerm  *shortterm.Store
	registry   *tools.Registry
	coord      *coordinator.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := backendmock.NewMockStore()
	cache, err := embedding.NewCache(embeddermock.NewMockService(64), embedding.DefaultCacheConfig())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	shortTerm := shortterm.NewStore(b, shortterm.DefaultConfig())
	proceduralStore := procedural.NewStore(b, procedural.DefaultConfig())
	coord := coordinator.New(coordinator.Stores{
		ShortTerm:  shortTerm,
		Episodic:   episodic.NewStore(b, cache, episodic.DefaultConfig()),
		Semantic:   semantic.NewStore(b, cache, semantic.DefaultConfig()),
		Procedural: proceduralStore,
	})

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.NewCalculatorTool()))
	require.NoError(t, registry.Register(tools.NewFunc("always_fails", "fails on purpose", map[string]any{"type": "object"},
		func(context.Context, json.RawMessage) (string, error) {
			return "", errors.New("boom")
		})))

	return &fixture{
		procedural: proceduralStore,
		shortTerm:  shortTerm,
		registry:   registry,
		coord:      coord,
	}
}

func newLoop(f *fixture, engine reasoning.Engine, config agent.Config) *agent.Loop {
	return agent.NewLoop(engine, f.registry, f.coord, config)
}

func calcCall(id string) reasoning.ToolCall {
	return reasoning.ToolCall{
		ID:        id,
		Name:      "calculator",
		Arguments: json.RawMessage(`{"operation":"add","a":2,"b":3}`),
	}
}

func TestProcessTurnDirectAnswer(t *testing.T) {
	f := newFixture(t)
	engine := enginemock.NewMockEngine(&reasoning.Response{Text: "Hello!"})
	loop := newLoop(f, engine, agent.DefaultConfig())

	result, err := loop.ProcessTurn(context.Background(), "u1", "s1", "hi there")
	require.NoError(t, err)

	assert.Equal(t, agent.StateDone, result.State)
	assert.Equal(t, "Hello!", result.Response)
	assert.Equal(t, 1, result.Iterations)
	assert.Empty(t, result.ToolsUsed)
	assert.InDelta(t, 1.0, result.SuccessScore, 0.0001)

	// Both sides of the turn landed in the conversation log
	messages, err := f.shortTerm.GetContext(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi there", messages[0].Content)
	assert.Equal(t, "Hello!", messages[1].Content)
}

func TestProcessTurnToolRoundTrip(t *testing.T) {
	f := newFixture(t)
	engine := enginemock.NewMockEngine(
		&reasoning.Response{ToolCalls: []reasoning.ToolCall{calcCall("c1")}},
		&reasoning.Response{Text: "2 + 3 is 5."},
	)
	loop := newLoop(f, engine, agent.DefaultConfig())

	result, err := loop.ProcessTurn(context.Background(), "u1", "s1", "what is 2 + 3?")
	require.NoError(t, err)

	assert.Equal(t, agent.StateDone, result.State)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, []string{"calculator"}, result.ToolsUsed)
	assert.InDelta(t, 1.0, result.SuccessScore, 0.0001)

	// The second request carried the tool result back to the model
	requests := engine.Requests()
	require.Len(t, requests, 2)
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, reasoning.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "5", last.Content)

	// A successful tool turn feeds the pattern store
	suggestion, err := f.procedural.Suggest(context.Background(), "what is 2 + 3?")
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	assert.Equal(t, []string{"calculator"}, suggestion.ToolSequence)
}

func TestProcessTurnAbortsAtIterationCap(t *testing.T) {
	f := newFixture(t)

	// The model keeps asking for tools forever
	engine := enginemock.NewMockEngine(
		&reasoning.Response{ToolCalls: []reasoning.ToolCall{calcCall("loop")}},
	)
	config := agent.DefaultConfig()
	config.MaxIterations = 8
	loop := newLoop(f, engine, config)

	result, err := loop.ProcessTurn(context.Background(), "u1", "s1", "never finishes")
	require.NoError(t, err)

	assert.Equal(t, agent.StateAborted, result.State)
	assert.Equal(t, 8, result.Iterations)
	assert.Equal(t, 8, engine.CallCount(), "exactly one model round per iteration")
	assert.NotEmpty(t, result.Response)
	assert.LessOrEqual(t, result.SuccessScore, 0.3)
}

func TestProcessTurnToolFailureFedBack(t *testing.T) {
	f := newFixture(t)
	engine := enginemock.NewMockEngine(
		&reasoning.Response{ToolCalls: []reasoning.ToolCall{{
			ID:        "c1",
			Name:      "always_fails",
			Arguments: json.RawMessage(`{}`),
		}}},
		&reasoning.Response{Text: "Sorry, the tool is broken."},
	)
	loop := newLoop(f, engine, agent.DefaultConfig())

	result, err := loop.ProcessTurn(context.Background(), "u1", "s1", "try the tool")
	require.NoError(t, err)

	assert.Equal(t, agent.StateDone, result.State)
	assert.InDelta(t, 0.5, result.SuccessScore, 0.0001)

	requests := engine.Requests()
	require.Len(t, requests, 2)
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, reasoning.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Error:")
}

func TestProcessTurnUnknownToolFedBack(t *testing.T) {
	f := newFixture(t)
	engine := enginemock.NewMockEngine(
		&reasoning.Response{ToolCalls: []reasoning.ToolCall{{
			ID:        "c1",
			Name:      "no_such_tool",
			Arguments: json.RawMessage(`{}`),
		}}},
		&reasoning.Response{Text: "That tool is not available."},
	)
	loop := newLoop(f, engine, agent.DefaultConfig())

	result, err := loop.ProcessTurn(context.Background(), "u1", "s1", "use a fake tool")
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, result.State)

	requests := engine.Requests()
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Contains(t, last.Content, "does not exist")
}

func TestProcessTurnToolTimeout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(tools.NewFunc("slow", "sleeps", map[string]any{"type": "object"},
		func(ctx context.Context, _ json.RawMessage) (string, error) {
			select {
			case <-time.After(time.Second):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})))

	engine := enginemock.NewMockEngine(
		&reasoning.Response{ToolCalls: []reasoning.ToolCall{{
			ID:        "c1",
			Name:      "slow",
			Arguments: json.RawMessage(`{}`),
		}}},
		&reasoning.Response{Text: "The tool timed out."},
	)
	config := agent.DefaultConfig()
	config.ToolTimeout = 20 * time.Millisecond
	loop := newLoop(f, engine, config)

	result, err := loop.ProcessTurn(context.Background(), "u1", "s1", "do the slow thing")
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, result.State)

	requests := engine.Requests()
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Contains(t, last.Content, "timed out")
}

func TestProcessTurnProviderErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	engine := enginemock.NewMockEngine(&reasoning.Response{Text: "never reached"})
	engine.SetError(errors.Wrap(errors.ErrProvider, "upstream down"))
	loop := newLoop(f, engine, agent.DefaultConfig())

	_, err := loop.ProcessTurn(context.Background(), "u1", "s1", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProvider))

	// A failed turn leaves no trace in the conversation log
	messages, err := f.shortTerm.GetContext(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestProcessTurnValidatesUserMessage(t *testing.T) {
	f := newFixture(t)
	loop := newLoop(f, enginemock.NewMockEngine(), agent.DefaultConfig())

	_, err := loop.ProcessTurn(context.Background(), "u1", "s1", "")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestProcessTurnIncludesMemoryInPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed an episodic memory, then ask about it with the same text so
	// the deterministic embedder guarantees a hit
	goal := "My goal is to run a marathon in under four hours"
	engine := enginemock.NewMockEngine(&reasoning.Response{Text: "Noted."})
	loop := newLoop(f, engine, agent.DefaultConfig())

	_, err := loop.ProcessTurn(ctx, "u1", "s1", goal)
	require.NoError(t, err)

	engine2 := enginemock.NewMockEngine(&reasoning.Response{Text: "Under four hours."})
	loop2 := newLoop(f, engine2, agent.DefaultConfig())

	_, err = loop2.ProcessTurn(ctx, "u1", "s1", goal)
	require.NoError(t, err)

	requests := engine2.Requests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].System, "marathon")
	assert.Contains(t, requests[0].System, "Relevant past events")
}
