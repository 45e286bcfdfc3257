// Package reasoning defines the interface to the language model. The
// agent loop talks to an Engine and never to a provider SDK directly.
package reasoning

import (
	"context"
	"encoding/json"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result message
	ID string

	// Name is the tool to invoke
	Name string

	// Arguments is the raw JSON argument payload
	Arguments json.RawMessage
}

// Message is one entry in the conversation sent to the model.
type Message struct {
	// Role is one of the Role* constants
	Role string

	// Content is the message text. For tool messages it is the tool result.
	Content string

	// ToolCallID links a tool message back to the call it answers
	ToolCallID string

	// ToolCalls carries the calls an assistant message requested
	ToolCalls []ToolCall
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one generation request.
type Request struct {
	// System is the system prompt, including any memory context
	System string

	// Messages is the conversation so far
	Messages []Message

	// Tools are the tools the model may call this turn
	Tools []ToolDef
}

// Response is the model's reply: either final text, or tool calls the
// caller must execute and feed back.
type Response struct {
	// Text is the assistant's text content, empty when only calling tools
	Text string

	// ToolCalls are the requested tool invocations, empty for a final answer
	ToolCalls []ToolCall
}

// Option is a function that configures a generation request.
type Option func(*Options)

// Options holds per-request generation overrides.
type Options struct {
	// Temperature controls randomness in generation (0.0-1.0)
	Temperature float64

	// MaxTokens limits the length of the generated response
	MaxTokens int

	// Model specifies which model variant to use
	Model string
}

// DefaultOptions returns default generation options.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.7,
		MaxTokens:   1024,
		Model:       "", // Empty means use the adapter's default
	}
}

// WithTemperature sets the temperature option.
func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// WithMaxTokens sets the max tokens option.
func WithMaxTokens(tokens int) Option {
	return func(o *Options) {
		o.MaxTokens = tokens
	}
}

// WithModel sets the model option.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// Engine is the interface for language model backends.
type Engine interface {
	// Generate sends the request to the model and returns its reply.
	Generate(ctx context.Context, request Request, opts ...Option) (*Response, error)
}
