// Package openai implements the embedding.Service interface using the
// OpenAI embeddings API.
package openai

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
)

// Default embedding model and its dimensionality.
const (
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
)

// Config holds the configuration for the OpenAI embedding adapter.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the embedding model, e.g. "text-embedding-3-small".
	Model string
	// Dimensions is the expected vector dimensionality.
	Dimensions int
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// OpenAIAdapter implements the embedding.Service interface using the OpenAI API.
type OpenAIAdapter struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIAdapter creates a new OpenAI embedding adapter.
func NewOpenAIAdapter(config Config) (*OpenAIAdapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Dimensions <= 0 {
		config.Dimensions = DefaultDimensions
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIAdapter{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.Model,
		dimensions: config.Dimensions,
	}, nil
}

// Embed implements the embedding.Service interface.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	request := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(a.model),
	}

	response, err := a.client.CreateEmbeddings(ctx, request)
	if err != nil {
		log.ErrorContext(ctx, "Failed to generate embedding", "error", err, "model", a.model)
		return nil, errors.Wrap(errors.ErrProvider, "openai embeddings: %v", err)
	}

	if len(response.Data) == 0 {
		return nil, errors.Wrap(errors.ErrProvider, "openai embeddings returned no data")
	}

	log.DebugContext(ctx, "Generated embedding",
		"model", a.model,
		"dimension", len(response.Data[0].Embedding),
	)

	return response.Data[0].Embedding, nil
}

// Dimensions implements the embedding.Service interface.
func (a *OpenAIAdapter) Dimensions() int {
	return a.dimensions
}
