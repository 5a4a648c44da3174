package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tomescry/pkg/provider/llm"
)

// ErrAllProvidersFailed is returned when every entry in a [Chain] fails or
// has an open circuit breaker.
var ErrAllProvidersFailed = errors.New("all model providers failed")

// chainEntry pairs a model provider with its dedicated circuit breaker.
type chainEntry struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

// Chain implements [llm.Provider] with automatic failover across multiple
// model backends. When the primary fails, or its breaker is open, the next
// healthy fallback is tried in registration order.
//
// Chain is safe for concurrent use.
type Chain struct {
	entries []chainEntry
}

// Compile-time interface assertion.
var _ llm.Provider = (*Chain)(nil)

// NewChain creates a [Chain] trying primary first, then each fallback in
// order. Every entry gets its own breaker derived from cfg, named after
// the provider it guards.
func NewChain(cfg CircuitBreakerConfig, primary llm.Provider, fallbacks ...llm.Provider) *Chain {
	c := &Chain{}
	for _, p := range append([]llm.Provider{primary}, fallbacks...) {
		bc := cfg
		bc.Name = p.Name()
		c.entries = append(c.entries, chainEntry{
			provider: p,
			breaker:  NewCircuitBreaker(bc),
		})
	}
	return c
}

// Complete sends the request to the first healthy provider and returns its
// response. Entries with an open breaker are skipped; any other failure
// moves on to the next entry. If every entry fails the last error is
// wrapped in [ErrAllProvidersFailed].
func (c *Chain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]

		var resp *llm.CompletionResponse
		err := entry.breaker.Execute(func() error {
			var callErr error
			resp, callErr = entry.provider.Complete(ctx, req)
			return callErr
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping model provider, circuit open",
				"provider", entry.provider.Name())
		} else {
			slog.Warn("model provider failed, trying next",
				"provider", entry.provider.Name(), "err", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// Name implements llm.Provider.
func (c *Chain) Name() string {
	return "chain"
}

// Providers returns the names of all entries in try order. Used for the
// startup summary.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.provider.Name()
	}
	return names
}
