// Package agent implements the bounded tool-execution loop: build a
// prompt from memory, let the model call tools, feed results back, and
// persist the finished turn.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
	"github.com/vitalmind/agentmem/pkg/mem/coordinator"
	"github.com/vitalmind/agentmem/pkg/reasoning"
	"github.com/vitalmind/agentmem/pkg/tools"
)

// State is the loop's lifecycle state.
type State string

// Loop states.
const (
	StateAwaitingLLM    State = "AWAITING_LLM"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateDone           State = "DONE"
	StateAborted        State = "ABORTED"
)

// abortedResponse is returned when the loop hits its iteration cap
// without the model producing a final answer.
const abortedResponse = "I wasn't able to finish working on that request. Here is what I have so far."

// Config contains configuration options for the agent loop.
type Config struct {
	// MaxIterations caps the number of model rounds per turn (default 8)
	MaxIterations int

	// ToolTimeout bounds each individual tool invocation
	ToolTimeout time.Duration

	// SystemPrompt is the base instruction prepended to every turn
	SystemPrompt string
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 8,
		ToolTimeout:   10 * time.Second,
		SystemPrompt:  "You are a helpful assistant with persistent memory. Use the provided context about the user when it is relevant, and use tools when they help answer the question.",
	}
}

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	// Response is the assistant's final (or best-effort) answer
	Response string

	// State is StateDone or StateAborted
	State State

	// Iterations is how many model rounds the turn took
	Iterations int

	// ToolsUsed is the ordered list of tool names invoked
	ToolsUsed []string

	// SuccessScore is the computed turn outcome in [0, 1]
	SuccessScore float64

	// ExecutionTimeMs is the wall time of the whole turn
	ExecutionTimeMs int64

	// MemoryUnavailable names memory stores that failed during retrieval
	MemoryUnavailable []string
}

// Loop drives one agent turn at a time.
type Loop struct {
	engine   reasoning.Engine
	registry *tools.Registry
	memory   *coordinator.Coordinator
	config   Config
}

// NewLoop creates an agent loop.
func NewLoop(engine reasoning.Engine, registry *tools.Registry, memory *coordinator.Coordinator, config Config) *Loop {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = DefaultConfig().ToolTimeout
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultConfig().SystemPrompt
	}
	return &Loop{engine: engine, registry: registry, memory: memory, config: config}
}

// ProcessTurn runs one full user turn: retrieve memory context, cycle
// between the model and tool execution until a final answer or the
// iteration cap, then persist the interaction. Model failures are fatal
// for the turn; individual tool failures are fed back to the model.
func (l *Loop) ProcessTurn(ctx context.Context, userID, sessionID, userMessage string) (*TurnResult, error) {
	if userMessage == "" {
		return nil, errors.Wrap(errors.ErrValidation, "user message cannot be empty")
	}

	started := time.Now()
	logger := log.WithTurn(log.FromContext(ctx), userID, sessionID)
	ctx = log.WithLogger(ctx, logger)

	memCtx, err := l.memory.RetrieveAllContext(ctx, userID, sessionID, userMessage)
	if err != nil {
		return nil, err
	}

	request := reasoning.Request{
		System:   l.buildSystemPrompt(memCtx),
		Messages: l.buildMessages(memCtx, userMessage),
		Tools:    l.toolDefs(),
	}

	var (
		state       = StateAwaitingLLM
		finalText   string
		toolsUsed   []string
		toolsFailed int
		iterations  int
	)

	for iterations < l.config.MaxIterations {
		iterations++
		state = StateAwaitingLLM

		response, err := l.engine.Generate(ctx, request)
		if err != nil {
			// No answer is possible without the model
			return nil, errors.Wrap(err, "turn failed after %d iterations", iterations)
		}

		if len(response.ToolCalls) == 0 {
			finalText = response.Text
			state = StateDone
			break
		}

		state = StateExecutingTools
		finalText = response.Text

		request.Messages = append(request.Messages, reasoning.Message{
			Role:      reasoning.RoleAssistant,
			Content:   response.Text,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			result, failed := l.invokeTool(ctx, call)
			if failed {
				toolsFailed++
			}
			toolsUsed = append(toolsUsed, call.Name)
			request.Messages = append(request.Messages, reasoning.Message{
				Role:       reasoning.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	if state != StateDone {
		state = StateAborted
		if finalText == "" {
			finalText = abortedResponse
		}
		log.WarnContext(ctx, "Turn aborted at iteration cap", "iterations", iterations)
	}

	executionTimeMs := time.Since(started).Milliseconds()
	score := successScore(finalText, len(toolsUsed), toolsFailed, state)

	storeErr := l.memory.StoreInteraction(ctx, coordinator.Interaction{
		UserID:          userID,
		SessionID:       sessionID,
		UserMessage:     userMessage,
		AssistantMsg:    finalText,
		ToolsUsed:       toolsUsed,
		ExecutionTimeMs: executionTimeMs,
		SuccessScore:    score,
	})
	if storeErr != nil {
		// The user already has an answer; losing the write degrades
		// future context but must not fail the turn
		log.WarnContext(ctx, "Failed to persist interaction", "error", storeErr)
	}

	log.InfoContext(ctx, "Turn complete",
		"state", state,
		"iterations", iterations,
		"tools_used", len(toolsUsed),
		"success_score", score,
		"execution_time_ms", executionTimeMs,
	)

	return &TurnResult{
		Response:          finalText,
		State:             state,
		Iterations:        iterations,
		ToolsUsed:         toolsUsed,
		SuccessScore:      score,
		ExecutionTimeMs:   executionTimeMs,
		MemoryUnavailable: memCtx.Unavailable,
	}, nil
}

// invokeTool runs one tool call under the per-tool timeout. Failures are
// rendered as error text for the model rather than propagated.
func (l *Loop) invokeTool(ctx context.Context, call reasoning.ToolCall) (result string, failed bool) {
	tool, ok := l.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: tool %q does not exist.", call.Name), true
	}

	toolCtx, cancel := context.WithTimeout(ctx, l.config.ToolTimeout)
	defer cancel()

	output, err := tool.Invoke(toolCtx, call.Arguments)
	if err != nil {
		if toolCtx.Err() != nil {
			err = errors.Wrap(errors.ErrTimeout, "tool %q timed out after %s", call.Name, l.config.ToolTimeout)
		} else {
			err = errors.Wrap(errors.ErrToolExecution, "tool %q failed: %v", call.Name, err)
		}
		log.WarnContext(ctx, "Tool invocation failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err), true
	}

	log.DebugContext(ctx, "Tool invoked", "tool", call.Name, "result_length", len(output))
	return output, false
}

func (l *Loop) buildSystemPrompt(memCtx *coordinator.MemoryContext) string {
	var b strings.Builder
	b.WriteString(l.config.SystemPrompt)

	if memCtx.Episodic != nil && memCtx.Episodic.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(memCtx.Episodic.Summary)
	}
	if memCtx.Semantic != nil && memCtx.Semantic.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(memCtx.Semantic.Summary)
	}
	if memCtx.Suggestion != nil && memCtx.Suggestion.Recommended {
		fmt.Fprintf(&b, "\n\nSimilar past requests were served well by these tools, in order: %s.",
			strings.Join(memCtx.Suggestion.ToolSequence, ", "))
	}
	return b.String()
}

func (l *Loop) buildMessages(memCtx *coordinator.MemoryContext, userMessage string) []reasoning.Message {
	messages := make([]reasoning.Message, 0, len(memCtx.Messages)+1)
	for _, msg := range memCtx.Messages {
		role := msg.Role
		if role != reasoning.RoleUser && role != reasoning.RoleAssistant {
			role = reasoning.RoleUser
		}
		messages = append(messages, reasoning.Message{Role: role, Content: msg.Content})
	}
	return append(messages, reasoning.Message{Role: reasoning.RoleUser, Content: userMessage})
}

func (l *Loop) toolDefs() []reasoning.ToolDef {
	list := l.registry.List()
	defs := make([]reasoning.ToolDef, 0, len(list))
	for _, tool := range list {
		defs = append(defs, reasoning.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// successScore grades a finished turn. A non-empty answer earns half the
// score; clean tool execution earns the other half (a turn with no tools
// counts as clean). Aborted turns are capped low so learned patterns do
// not reinforce them.
func successScore(response string, toolsUsed, toolsFailed int, state State) float64 {
	if strings.TrimSpace(response) == "" {
		return 0
	}

	score := 0.5
	if toolsUsed == 0 {
		score += 0.5
	} else {
		score += 0.5 * float64(toolsUsed-toolsFailed) / float64(toolsUsed)
	}

	if state == StateAborted && score > 0.3 {
		score = 0.3
	}
	return score
}
