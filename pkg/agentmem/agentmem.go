// Package agentmem is the top-level facade: it wires the backend, the
// embedding cache, the four memory stores, the coordinator, and the
// agent loop from a single configuration.
package agentmem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vitalmind/agentmem/pkg/agent"
	"github.com/vitalmind/agentmem/pkg/backend"
	"github.com/vitalmind/agentmem/pkg/backend/adapters/embedded"
	backendMock "github.com/vitalmind/agentmem/pkg/backend/adapters/mock"
	backendPostgres "github.com/vitalmind/agentmem/pkg/backend/adapters/postgres"
	"github.com/vitalmind/agentmem/pkg/config"
	"github.com/vitalmind/agentmem/pkg/embedding"
	embeddingMock "github.com/vitalmind/agentmem/pkg/embedding/adapters/mock"
	embeddingOpenAI "github.com/vitalmind/agentmem/pkg/embedding/adapters/openai"
	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
	"github.com/vitalmind/agentmem/pkg/mem/coordinator"
	"github.com/vitalmind/agentmem/pkg/mem/episodic"
	"github.com/vitalmind/agentmem/pkg/mem/procedural"
	"github.com/vitalmind/agentmem/pkg/mem/semantic"
	"github.com/vitalmind/agentmem/pkg/mem/shortterm"
	"github.com/vitalmind/agentmem/pkg/reasoning"
	reasoningMock "github.com/vitalmind/agentmem/pkg/reasoning/adapters/mock"
	reasoningOpenAI "github.com/vitalmind/agentmem/pkg/reasoning/adapters/openai"
	"github.com/vitalmind/agentmem/pkg/tools"
)

// Client is the assembled agent memory system.
type Client struct {
	manager     *backend.Manager
	embedder    *embedding.Cache
	coordinator *coordinator.Coordinator
	loop        *agent.Loop

	shortTerm  *shortterm.Store
	episodic   *episodic.Store
	semantic   *semantic.Store
	procedural *procedural.Store

	turnTimeout time.Duration
}

// New assembles a client from configuration. The tool registry is
// supplied by the caller; tool business logic lives outside this module.
func New(cfg *config.Config, registry *tools.Registry) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}

	store, err := initBackend(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize backend")
	}

	manager := backend.NewManager(store, backend.ManagerConfig{
		MaxConns:         cfg.Backend.Pool.MaxConns,
		AcquireTimeout:   time.Duration(cfg.Backend.Pool.AcquireTimeoutSeconds) * time.Second,
		OpTimeout:        time.Duration(cfg.Backend.Pool.OpTimeoutSeconds) * time.Second,
		RetryAttempts:    cfg.Backend.Pool.RetryAttempts,
		RetryBackoff:     time.Duration(cfg.Backend.Pool.RetryBackoffMillis) * time.Millisecond,
		FailureThreshold: cfg.Backend.Breaker.FailureThreshold,
		Cooldown:         time.Duration(cfg.Backend.Breaker.CooldownSeconds) * time.Second,
	})

	embedder, err := initEmbedder(cfg)
	if err != nil {
		manager.Close()
		return nil, errors.Wrap(err, "failed to initialize embedder")
	}

	engine, err := initEngine(cfg)
	if err != nil {
		embedder.Close()
		manager.Close()
		return nil, errors.Wrap(err, "failed to initialize reasoning engine")
	}

	shortTerm := shortterm.NewStore(manager, shortterm.Config{
		MaxTokens:         cfg.Memory.ShortTerm.MaxTokens,
		MinMessagesToKeep: cfg.Memory.ShortTerm.MinMessagesToKeep,
		SessionTTL:        time.Duration(cfg.Memory.ShortTerm.SessionTTLHours) * time.Hour,
	})
	episodicStore := episodic.NewStore(manager, embedder, episodic.Config{
		TTL:                 time.Duration(cfg.Memory.Episodic.TTLDays) * 24 * time.Hour,
		TopK:                cfg.Memory.Episodic.TopK,
		SimilarityThreshold: cfg.Memory.Episodic.SimilarityThreshold,
	})
	semanticStore := semantic.NewStore(manager, embedder, semantic.Config{
		TTL:                 time.Duration(cfg.Memory.Semantic.TTLDays) * 24 * time.Hour,
		TopK:                cfg.Memory.Semantic.TopK,
		SimilarityThreshold: cfg.Memory.Semantic.SimilarityThreshold,
	})
	proceduralStore := procedural.NewStore(manager, procedural.Config{
		RecommendThreshold: cfg.Memory.Procedural.RecommendThreshold,
	})

	coord := coordinator.New(coordinator.Stores{
		ShortTerm:  shortTerm,
		Episodic:   episodicStore,
		Semantic:   semanticStore,
		Procedural: proceduralStore,
	})

	loop := agent.NewLoop(engine, registry, coord, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		ToolTimeout:   time.Duration(cfg.Agent.ToolTimeoutSeconds) * time.Second,
	})

	log.Info("Agent memory client initialized",
		"backend", cfg.Backend.Type,
		"embedding_provider", cfg.Embedding.Provider,
		"llm_provider", cfg.LLM.Provider,
		"max_iterations", cfg.Agent.MaxIterations,
	)

	return &Client{
		manager:     manager,
		embedder:    embedder,
		coordinator: coord,
		loop:        loop,
		shortTerm:   shortTerm,
		episodic:    episodicStore,
		semantic:    semanticStore,
		procedural:  proceduralStore,
		turnTimeout: time.Duration(cfg.Agent.TurnTimeoutSeconds) * time.Second,
	}, nil
}

// NewFromConfigFile loads configuration from a YAML file and assembles a
// client from it.
func NewFromConfigFile(path string, registry *tools.Registry) (*Client, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return New(cfg, registry)
}

// ProcessTurn runs one full agent turn under the configured turn timeout.
func (c *Client) ProcessTurn(ctx context.Context, userID, sessionID, userMessage string) (*agent.TurnResult, error) {
	if c.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.turnTimeout)
		defer cancel()
	}
	return c.loop.ProcessTurn(ctx, userID, sessionID, userMessage)
}

// RetrieveContext assembles the memory context for a query without
// running the loop. Useful for inspection and admin tooling.
func (c *Client) RetrieveContext(ctx context.Context, userID, sessionID, queryText string) (*coordinator.MemoryContext, error) {
	return c.coordinator.RetrieveAllContext(ctx, userID, sessionID, queryText)
}

// LoadKnowledge bulk-loads facts into the semantic store.
func (c *Client) LoadKnowledge(ctx context.Context, facts []semantic.Fact) (int, error) {
	return c.semantic.BulkLoad(ctx, facts)
}

// ClearSession drops a session's conversation log.
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	return c.shortTerm.Clear(ctx, sessionID)
}

// ClearUserMemory removes every episodic event for a user.
func (c *Client) ClearUserMemory(ctx context.Context, userID string) (int, error) {
	return c.episodic.Clear(ctx, userID)
}

// Healthy reports whether the backend answers a ping through the
// resilience layer.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.manager.Healthy(ctx)
}

// BreakerState reports the circuit breaker state for observability.
func (c *Client) BreakerState() backend.BreakerState {
	return c.manager.BreakerState()
}

// Close releases the backend and the embedding cache.
func (c *Client) Close() error {
	c.embedder.Close()
	return c.manager.Close()
}

// initBackend constructs the raw backend adapter named by configuration.
func initBackend(cfg *config.Config) (backend.Store, error) {
	backendType := strings.ToLower(cfg.Backend.Type)
	log.Info("Initializing backend", "type", backendType)

	switch backendType {
	case "embedded", "":
		path := cfg.Backend.Embedded.Path
		if path == "" {
			path = "agentmem.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "failed to create data directory")
			}
		}
		store, err := embedded.NewEmbeddedStore(embedded.Config{
			Path:       path,
			VectorPath: cfg.Backend.Embedded.VectorPath,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case "postgres":
		dsn := cfg.Backend.Postgres.DSN
		if dsn == "" {
			dsn = os.Getenv("AGENTMEM_POSTGRES_DSN")
		}
		if dsn == "" {
			return nil, errors.Wrap(errors.ErrValidation, "postgres backend requires a DSN")
		}
		store, err := backendPostgres.NewPostgresStore(context.Background(), backendPostgres.Config{
			DSN:         dsn,
			TablePrefix: cfg.Backend.Postgres.TablePrefix,
			Dimensions:  cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case "mock":
		return backendMock.NewMockStore(), nil

	default:
		return nil, errors.Wrap(errors.ErrValidation, "unsupported backend type: %s", backendType)
	}
}

// initEmbedder constructs the embedding service and wraps it in the cache.
func initEmbedder(cfg *config.Config) (*embedding.Cache, error) {
	provider := strings.ToLower(cfg.Embedding.Provider)
	log.Info("Initializing embedding provider", "provider", provider)

	var service embedding.Service
	switch provider {
	case "openai":
		apiKey := cfg.Embedding.OpenAI.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			log.Warn("OpenAI API key not found, falling back to mock embedder")
			service = embeddingMock.NewMockService(cfg.Embedding.Dimensions)
			break
		}
		adapter, err := embeddingOpenAI.NewOpenAIAdapter(embeddingOpenAI.Config{
			APIKey:     apiKey,
			Model:      cfg.Embedding.OpenAI.Model,
			Dimensions: cfg.Embedding.Dimensions,
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		service = adapter

	case "mock", "":
		service = embeddingMock.NewMockService(cfg.Embedding.Dimensions)

	default:
		return nil, errors.Wrap(errors.ErrValidation, "unsupported embedding provider: %s", provider)
	}

	return embedding.NewCache(service, embedding.CacheConfig{
		TTL:        time.Duration(cfg.Embedding.CacheTTLSeconds) * time.Second,
		MaxEntries: cfg.Embedding.CacheMaxEntries,
	})
}

// initEngine constructs the reasoning engine named by configuration.
func initEngine(cfg *config.Config) (reasoning.Engine, error) {
	provider := strings.ToLower(cfg.LLM.Provider)
	log.Info("Initializing reasoning engine", "provider", provider)

	switch provider {
	case "openai":
		apiKey := cfg.LLM.OpenAI.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			log.Warn("OpenAI API key not found, falling back to mock engine")
			return defaultMockEngine(), nil
		}
		adapter, err := reasoningOpenAI.NewOpenAIAdapter(reasoningOpenAI.Config{
			APIKey:      apiKey,
			Model:       cfg.LLM.OpenAI.Model,
			MaxTokens:   cfg.LLM.OpenAI.MaxTokens,
			Temperature: cfg.LLM.OpenAI.Temperature,
			BaseURL:     cfg.LLM.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return adapter, nil

	case "mock", "":
		return defaultMockEngine(), nil

	default:
		return nil, errors.Wrap(errors.ErrValidation, "unsupported llm provider: %s", provider)
	}
}

func defaultMockEngine() reasoning.Engine {
	return reasoningMock.NewMockEngine(&reasoning.Response{
		Text: "I received your message, but no language model is configured.",
	})
}
