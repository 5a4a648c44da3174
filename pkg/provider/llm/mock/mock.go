// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to script a whole conversation without a live
// model backend: each Complete call pops the next reply off Script, and
// every request is recorded for later inspection.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []string{
//	        `<CALL>{"fn":"fetch_and_cache","args":{"type":"monsters","slug":"goblin"}}</CALL>`,
//	        "A goblin has 7 hit points.",
//	    },
//	}
//
// All fields are safe to set before calling any method; mutating them during
// a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/tomescry/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script is the ordered sequence of reply texts. The n-th Complete call
	// returns the n-th entry; a call past the end returns an error, which
	// makes over-calling tests fail loudly.
	Script []string

	// CompleteErr, if non-nil, is returned by every Complete call instead of
	// consuming the script.
	CompleteErr error

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}

	idx := len(p.CompleteCalls) - 1
	if idx >= len(p.Script) {
		return nil, fmt.Errorf("mock: script exhausted after %d replies", len(p.Script))
	}
	return &llm.CompletionResponse{Content: p.Script[idx]}, nil
}

// Name returns NameValue, or "mock" when unset.
func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

// Calls returns a snapshot of the recorded Complete invocations.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
