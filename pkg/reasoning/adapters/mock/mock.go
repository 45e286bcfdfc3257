// Package mock provides a scripted reasoning engine for testing.
package mock

import (
	"context"
	"sync"

	"github.com/vitalmind/agentmem/pkg/errors"
	"github.com/vitalmind/agentmem/pkg/reasoning"
)

// MockEngine replays a fixed script of responses, one per Generate call,
// and records every request it receives.
type MockEngine struct {
	mu        sync.Mutex
	script    []*reasoning.Response
	requests  []reasoning.Request
	callCount int
	err       error
}

var _ reasoning.Engine = (*MockEngine)(nil)

// NewMockEngine creates an engine that returns the given responses in order.
func NewMockEngine(script ...*reasoning.Response) *MockEngine {
	return &MockEngine{script: script}
}

// SetError makes every subsequent Generate call fail with err.
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// CallCount returns how many times Generate has been called.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request received so far.
func (m *MockEngine) Requests() []reasoning.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reasoning.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate returns the next scripted response. Calls past the end of the
// script repeat the last response; an empty script is a provider error.
func (m *MockEngine) Generate(ctx context.Context, request reasoning.Request, _ ...reasoning.Option) (*reasoning.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, "generation canceled: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, request)
	m.callCount++

	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return nil, errors.Wrap(errors.ErrProvider, "mock engine has no scripted responses")
	}

	index := m.callCount - 1
	if index >= len(m.script) {
		index = len(m.script) - 1
	}
	return m.script[index], nil
}
