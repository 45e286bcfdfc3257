package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from a byte slice. Unset fields fall
// back to the defaults from Default().
func LoadFromBytes(data []byte) (*Config, error) {
	config := Default()

	err := yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvironmentOverrides(config)

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) {
	// Backend overrides
	if backendType := os.Getenv("AGENTMEM_BACKEND_TYPE"); backendType != "" {
		config.Backend.Type = backendType
	}

	if path := os.Getenv("AGENTMEM_EMBEDDED_PATH"); path != "" {
		config.Backend.Embedded.Path = path
	}

	if dsn := os.Getenv("AGENTMEM_POSTGRES_DSN"); dsn != "" {
		config.Backend.Postgres.DSN = dsn
	}

	// OpenAI API key override (shared by embedding and chat)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.OpenAI.APIKey = apiKey
		config.LLM.OpenAI.APIKey = apiKey
	}

	// Log level override
	if level := os.Getenv("AGENTMEM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	switch strings.ToLower(config.Backend.Type) {
	case "embedded":
		if config.Backend.Embedded.Path == "" {
			return fmt.Errorf("embedded path is required for embedded backend type")
		}
	case "postgres":
		if config.Backend.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required for postgres backend type")
		}
	case "mock":
		// No additional configuration required
	default:
		return fmt.Errorf("unsupported backend type: %s", config.Backend.Type)
	}

	switch strings.ToLower(config.Embedding.Provider) {
	case "openai":
		if config.Embedding.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api key is required for openai embedding provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}

	switch strings.ToLower(config.LLM.Provider) {
	case "openai":
		if config.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api key is required for openai llm provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported llm provider: %s", config.LLM.Provider)
	}

	if config.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}

	if config.Backend.Pool.MaxConns <= 0 {
		return fmt.Errorf("pool max_conns must be positive")
	}

	if config.Backend.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure_threshold must be positive")
	}

	if config.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max_iterations must be positive")
	}

	if config.Memory.Procedural.RecommendThreshold < 0 || config.Memory.Procedural.RecommendThreshold > 1 {
		return fmt.Errorf("procedural recommend_threshold must be between 0 and 1")
	}

	return nil
}
