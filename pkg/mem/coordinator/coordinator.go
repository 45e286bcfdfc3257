// Package coordinator fans a single agent turn out across the memory
// stores: concurrent retrieval from all four on the read path, selective
// writes on the store path. A failing store degrades the turn, it never
// fails it.
package coordinator

import (
	"context"
	"sync"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
	"github.com/vitalmind/agentmem/pkg/mem/episodic"
	"github.com/vitalmind/agentmem/pkg/mem/procedural"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
	"github.com/vitalmind/agentmem/pkg/mem/shortterm"
)

// Store names reported in MemoryContext.Unavailable.
const (
	StoreShortTerm  = "short_term"
	StoreEpisodic   = "episodic"
	StoreSemantic   = "semantic"
	StoreProcedural = "procedural"
)

// Stores bundles the four memory stores the coordinator drives.
type Stores struct {
	ShortTerm  *shortterm.Store
	Episodic   *episodic.Store
	Semantic   *semantic.Store
	Procedural *procedural.Store
}

// MemoryContext is everything the stores contributed to one turn.
type MemoryContext struct {
	// Messages is the token-trimmed conversation history, oldest first
	Messages []shortterm.Message

	// ContextStats describes the trimming outcome
	ContextStats shortterm.ContextStats

	// Episodic holds the matched per-user events, nil when the store failed
	Episodic *episodic.Result

	// Semantic holds the matched knowledge facts, nil when the store failed
	Semantic *semantic.Result

	// Suggestion is the learned tool pattern for this query, nil when
	// none exists or the store failed
	Suggestion *procedural.Suggestion

	// Unavailable names the stores that failed during retrieval
	Unavailable []string
}

// Interaction is one completed user/assistant exchange to be persisted.
type Interaction struct {
	UserID       string
	SessionID    string
	UserMessage  string
	AssistantMsg string

	// ToolsUsed is the ordered tool names invoked during the turn
	ToolsUsed []string

	// ExecutionTimeMs is the wall time the tool phase took
	ExecutionTimeMs int64

	// SuccessScore is the turn outcome in [0, 1]
	SuccessScore float64
}

// Coordinator orchestrates reads and writes across the memory stores.
type Coordinator struct {
	stores Stores
}

// New creates a coordinator over the given stores.
func New(stores Stores) *Coordinator {
	return &Coordinator{stores: stores}
}

// RetrieveAllContext queries all four stores concurrently and assembles
// whatever succeeded. Individual store failures are logged and reported
// in Unavailable; the call itself only fails on context cancellation.
func (c *Coordinator) RetrieveAllContext(ctx context.Context, userID, sessionID, queryText string) (*MemoryContext, error) {
	if userID == "" || sessionID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "user id and session id cannot be empty")
	}

	memCtx := &MemoryContext{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	fail := func(store string, err error) {
		log.WarnContext(ctx, "Memory store unavailable during retrieval",
			"store", store,
			"user_id", userID,
			"session_id", sessionID,
			"error", err,
		)
		mu.Lock()
		memCtx.Unavailable = append(memCtx.Unavailable, store)
		mu.Unlock()
	}

	wg.Add(4)

	go func() {
		defer wg.Done()
		messages, stats, err := c.stores.ShortTerm.GetContextTokenAware(ctx, sessionID, 0)
		if err != nil {
			fail(StoreShortTerm, err)
			return
		}
		mu.Lock()
		memCtx.Messages = messages
		memCtx.ContextStats = stats
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		result, err := c.stores.Episodic.Retrieve(ctx, userID, queryText, episodic.RetrieveOptions{})
		if err != nil {
			fail(StoreEpisodic, err)
			return
		}
		mu.Lock()
		memCtx.Episodic = result
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		result, err := c.stores.Semantic.Retrieve(ctx, queryText, semantic.RetrieveOptions{})
		if err != nil {
			fail(StoreSemantic, err)
			return
		}
		mu.Lock()
		memCtx.Semantic = result
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		suggestion, err := c.stores.Procedural.Suggest(ctx, queryText)
		if err != nil {
			fail(StoreProcedural, err)
			return
		}
		mu.Lock()
		memCtx.Suggestion = suggestion
		mu.Unlock()
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, "context retrieval canceled: %v", err)
	}

	log.DebugContext(ctx, "Assembled memory context",
		"user_id", userID,
		"session_id", sessionID,
		"message_count", memCtx.ContextStats.MessageCount,
		"unavailable", memCtx.Unavailable,
	)
	return memCtx, nil
}

// StoreInteraction persists a completed turn. The conversation log always
// receives both messages; the episodic store only when the turn is judged
// memorable; the procedural store only when tools actually ran. The
// knowledge store is never written here. Conversation log failures are
// returned, side-store failures are logged and swallowed so one flaky
// store cannot lose the turn.
func (c *Coordinator) StoreInteraction(ctx context.Context, interaction Interaction) error {
	if interaction.UserID == "" || interaction.SessionID == "" {
		return errors.Wrap(errors.ErrValidation, "user id and session id cannot be empty")
	}

	if err := c.stores.ShortTerm.Append(ctx, interaction.SessionID, "user", interaction.UserMessage); err != nil {
		return errors.Wrap(err, "failed to record user message")
	}
	if err := c.stores.ShortTerm.Append(ctx, interaction.SessionID, "assistant", interaction.AssistantMsg); err != nil {
		return errors.Wrap(err, "failed to record assistant message")
	}

	if classification := episodic.ClassifyMemorability(interaction.UserMessage, interaction.AssistantMsg); classification.Memorable {
		_, err := c.stores.Episodic.Store(ctx, episodic.Event{
			UserID:      interaction.UserID,
			Type:        classification.Type,
			Description: interaction.UserMessage,
			Context:     interaction.AssistantMsg,
		})
		if err != nil {
			log.WarnContext(ctx, "Failed to store episodic event",
				"user_id", interaction.UserID,
				"error", err,
			)
		}
	}

	if len(interaction.ToolsUsed) > 0 {
		err := c.stores.Procedural.Record(ctx,
			interaction.UserMessage,
			interaction.ToolsUsed,
			interaction.ExecutionTimeMs,
			interaction.SuccessScore,
		)
		if err != nil {
			log.WarnContext(ctx, "Failed to record tool pattern",
				"user_id", interaction.UserID,
				"error", err,
			)
		}
	}

	return nil
}
