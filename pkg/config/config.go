package config

// Config represents the top-level configuration for the agentmem library.
type Config struct {
	// Backend configures the durable backend and its resilience layer
	Backend BackendConfig `yaml:"backend"`

	// Embedding configures the embedding provider and cache
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Memory configures the four memory stores
	Memory MemoryConfig `yaml:"memory"`

	// LLM configures the language model provider
	LLM LLMConfig `yaml:"llm"`

	// Agent configures the tool-execution loop
	Agent AgentConfig `yaml:"agent"`

	// Logging configures the logging behavior
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the durable backend adapter, connection pool,
// and circuit breaker.
type BackendConfig struct {
	// Type specifies the backend adapter ("embedded", "postgres", "mock")
	Type string `yaml:"type"`

	// Embedded configures the embedded bbolt+chromem backend
	Embedded EmbeddedConfig `yaml:"embedded"`

	// Postgres configures the PostgreSQL backend
	Postgres PostgresConfig `yaml:"postgres"`

	// Pool configures the connection pool
	Pool PoolConfig `yaml:"pool"`

	// Breaker configures the circuit breaker
	Breaker BreakerConfig `yaml:"breaker"`
}

// EmbeddedConfig configures the embedded bbolt+chromem backend.
type EmbeddedConfig struct {
	// Path is the bbolt database file path
	Path string `yaml:"path"`

	// VectorPath is the directory for persistent vector storage
	// (if empty, the vector index is kept in memory)
	VectorPath string `yaml:"vector_path"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string
	DSN string `yaml:"dsn"`

	// TablePrefix is prepended to all backend table names
	TablePrefix string `yaml:"table_prefix"`
}

// PoolConfig configures the connection pool.
type PoolConfig struct {
	// MaxConns is the maximum number of pooled handles (default 20)
	MaxConns int `yaml:"max_conns"`

	// AcquireTimeoutSeconds bounds how long a caller waits for a handle
	AcquireTimeoutSeconds int `yaml:"acquire_timeout_seconds"`

	// OpTimeoutSeconds bounds each backend operation (default 5)
	OpTimeoutSeconds int `yaml:"op_timeout_seconds"`

	// RetryAttempts is how many times transient errors are retried
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoffMillis is the base backoff between retries
	RetryBackoffMillis int `yaml:"retry_backoff_millis"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker (default 5)
	FailureThreshold int `yaml:"failure_threshold"`

	// CooldownSeconds is how long the breaker stays open before allowing
	// a half-open probe (default 30)
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// EmbeddingConfig configures the embedding provider and cache.
type EmbeddingConfig struct {
	// Provider is the embedding provider ("openai", "mock")
	Provider string `yaml:"provider"`

	// OpenAI configures OpenAI embedding integration
	OpenAI OpenAIEmbeddingConfig `yaml:"openai"`

	// Dimensions is the fixed embedding dimensionality enforced on insert
	Dimensions int `yaml:"dimensions"`

	// CacheTTLSeconds is the embedding cache entry lifetime (default 3600)
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CacheMaxEntries bounds the embedding cache size
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// OpenAIEmbeddingConfig configures OpenAI embedding integration.
type OpenAIEmbeddingConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the embedding model, e.g. "text-embedding-3-small"
	Model string `yaml:"model"`

	// BaseURL overrides the API base URL (for testing)
	BaseURL string `yaml:"base_url"`
}

// MemoryConfig configures the four memory stores.
type MemoryConfig struct {
	// ShortTerm configures the per-session conversation log
	ShortTerm ShortTermConfig `yaml:"short_term"`

	// Episodic configures the per-user event store
	Episodic EpisodicConfig `yaml:"episodic"`

	// Semantic configures the general-knowledge store
	Semantic SemanticConfig `yaml:"semantic"`

	// Procedural configures the learned tool-pattern store
	Procedural ProceduralConfig `yaml:"procedural"`
}

// ShortTermConfig configures the short-term conversation store.
type ShortTermConfig struct {
	// MaxTokens is the token budget for token-aware retrieval
	MaxTokens int `yaml:"max_tokens"`

	// MinMessagesToKeep is the floor on retained messages when trimming
	MinMessagesToKeep int `yaml:"min_messages_to_keep"`

	// SessionTTLHours is the sliding session lifetime, refreshed on write
	SessionTTLHours int `yaml:"session_ttl_hours"`
}

// EpisodicConfig configures the episodic event store.
type EpisodicConfig struct {
	// TTLDays is the event lifetime, emulating gradual forgetting
	TTLDays int `yaml:"ttl_days"`

	// TopK is the default number of similarity hits returned
	TopK int `yaml:"top_k"`

	// SimilarityThreshold filters hits below this cosine similarity
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// SemanticConfig configures the semantic knowledge store.
type SemanticConfig struct {
	// TTLDays is the fact lifetime
	TTLDays int `yaml:"ttl_days"`

	// TopK is the default number of similarity hits returned
	TopK int `yaml:"top_k"`

	// SimilarityThreshold filters hits below this cosine similarity
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// ProceduralConfig configures the tool-pattern store.
type ProceduralConfig struct {
	// RecommendThreshold is the confidence at or above which a pattern
	// is marked recommended (default 0.7)
	RecommendThreshold float64 `yaml:"recommend_threshold"`
}

// LLMConfig configures the language model provider.
type LLMConfig struct {
	// Provider is the LLM provider ("openai", "mock")
	Provider string `yaml:"provider"`

	// OpenAI configures OpenAI chat integration
	OpenAI OpenAIChatConfig `yaml:"openai"`

	// TimeoutSeconds bounds each LLM call
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// OpenAIChatConfig configures OpenAI chat integration.
type OpenAIChatConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the chat model, e.g. "gpt-4o"
	Model string `yaml:"model"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls randomness in generation (0.0-1.0)
	Temperature float64 `yaml:"temperature"`

	// BaseURL overrides the API base URL (for testing)
	BaseURL string `yaml:"base_url"`
}

// AgentConfig configures the tool-execution loop.
type AgentConfig struct {
	// MaxIterations caps LLM/tool rounds per turn (default 8)
	MaxIterations int `yaml:"max_iterations"`

	// ToolTimeoutSeconds bounds each tool invocation
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds"`

	// TurnTimeoutSeconds bounds a whole turn (LLM + tool time)
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error")
	Level string `yaml:"level"`

	// Format is the output format ("text", "json")
	Format string `yaml:"format"`
}

// Default returns a Config populated with every policy default.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Type: "embedded",
			Embedded: EmbeddedConfig{
				Path: "agentmem.db",
			},
			Pool: PoolConfig{
				MaxConns:              20,
				AcquireTimeoutSeconds: 5,
				OpTimeoutSeconds:      5,
				RetryAttempts:         2,
				RetryBackoffMillis:    100,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				CooldownSeconds:  30,
			},
		},
		Embedding: EmbeddingConfig{
			Provider: "mock",
			OpenAI: OpenAIEmbeddingConfig{
				Model: "text-embedding-3-small",
			},
			Dimensions:      1536,
			CacheTTLSeconds: 3600,
			CacheMaxEntries: 10000,
		},
		Memory: MemoryConfig{
			ShortTerm: ShortTermConfig{
				MaxTokens:         2000,
				MinMessagesToKeep: 4,
				SessionTTLHours:   24,
			},
			Episodic: EpisodicConfig{
				TTLDays:             180,
				TopK:                5,
				SimilarityThreshold: 0.3,
			},
			Semantic: SemanticConfig{
				TTLDays:             365,
				TopK:                5,
				SimilarityThreshold: 0.3,
			},
			Procedural: ProceduralConfig{
				RecommendThreshold: 0.7,
			},
		},
		LLM: LLMConfig{
			Provider: "mock",
			OpenAI: OpenAIChatConfig{
				Model:       "gpt-4o",
				MaxTokens:   1024,
				Temperature: 0.7,
			},
			TimeoutSeconds: 60,
		},
		Agent: AgentConfig{
			MaxIterations:      8,
			ToolTimeoutSeconds: 30,
			TurnTimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
