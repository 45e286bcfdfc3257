// Package openai adapts the OpenAI chat completion API to the
// reasoning.Engine interface, including tool calling.
package openai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/log"
	"github.com/vitalmind/agentmem/pkg/reasoning"
)

// Config holds the configuration for the OpenAI adapter.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the chat model, e.g. "gpt-4o-mini".
	Model string
	// MaxTokens caps the response length when the request sets none.
	MaxTokens int
	// Temperature is the default sampling temperature.
	Temperature float64
	// BaseURL overrides the API endpoint (for testing).
	BaseURL string
}

// OpenAIAdapter implements reasoning.Engine using the OpenAI API.
type OpenAIAdapter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(config Config) (*OpenAIAdapter, error) {
	if config.APIKey == "" {
		return nil, errors.Wrap(errors.ErrValidation, "API key cannot be empty")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIAdapter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}, nil
}

// Generate sends the conversation and tool definitions to the chat
// completion API and maps the reply back. API failures are provider
// errors; the loop treats them as fatal.
func (a *OpenAIAdapter) Generate(ctx context.Context, request reasoning.Request, opts ...reasoning.Option) (*reasoning.Response, error) {
	options := reasoning.DefaultOptions()
	options.Temperature = a.temperature
	options.MaxTokens = a.maxTokens
	for _, opt := range opts {
		opt(&options)
	}

	model := a.model
	if options.Model != "" {
		model = options.Model
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)
	if request.System != "" {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.System,
		})
	}
	for _, msg := range request.Messages {
		chatMessages = append(chatMessages, toChatMessage(msg))
	}

	chatRequest := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}
	for _, tool := range request.Tools {
		chatRequest.Tools = append(chatRequest.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	log.DebugContext(ctx, "Requesting chat completion",
		"model", model,
		"messages", len(chatMessages),
		"tools", len(chatRequest.Tools),
	)

	chatResponse, err := a.client.CreateChatCompletion(ctx, chatRequest)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProvider, "chat completion failed: %v", err)
	}
	if len(chatResponse.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrProvider, "no response choices returned")
	}

	choice := chatResponse.Choices[0].Message
	response := &reasoning.Response{
		Text: strings.TrimSpace(choice.Content),
	}
	for _, call := range choice.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, reasoning.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}

	log.DebugContext(ctx, "Chat completion received",
		"model", model,
		"tokens", chatResponse.Usage.TotalTokens,
		"tool_calls", len(response.ToolCalls),
	)
	return response, nil
}

func toChatMessage(msg reasoning.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return out
}
