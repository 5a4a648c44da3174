// Package agent implements the conversation driver: a ReACT loop that
// alternates between model completions and tool dispatch until the model
// produces a grounded final answer.
//
// # Protocol
//
//  1. The conversation starts with the system prompt and the user query.
//  2. Each step sends the full history to the model and appends its reply
//     as an assistant message.
//  3. If the reply contains a <CALL> block, the call is dispatched and the
//     resulting observation is appended as a system message.
//  4. A reply without a <CALL> block is only accepted as the final answer
//     once a detail fetch has succeeded; before that, a system reminder is
//     appended and the loop continues.
//  5. After a successful detail fetch an instruction is injected telling
//     the model to answer in natural language and stop calling tools.
//
// The loop is bounded by a step budget; exhausting it yields a fixed
// advisory answer instead of an error.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/tomescry/internal/dispatch"
	"github.com/MrWong99/tomescry/internal/observe"
	"github.com/MrWong99/tomescry/pkg/provider/llm"
)

const (
	// DefaultMaxToolSteps is the default budget of model invocations per
	// conversation.
	DefaultMaxToolSteps = 6

	// DefaultTemperature is the sampling temperature used when none is
	// configured. Low on purpose: the protocol leaves no room for creative
	// tool syntax.
	DefaultTemperature = 0.2
)

// Fixed protocol strings. These are wire-visible to the model and must not
// be reworded casually: the system prompt's examples reference them.
const (
	reminderMessage = `Reminder: You MUST call a tool next. Output exactly one block like <CALL>{"fn":"...","args":{...}}</CALL>. Do NOT give a final answer yet.`

	postFetchMessage = "You have just received the full JSON data from fetch_and_cache. " +
		"Now you MUST answer the user's question in natural language, using that data. " +
		"Do NOT call any tools again, and do NOT output any <CALL> blocks in your next message."

	budgetExhaustedAnswer = "Tool call limit reached. Please provide a final answer based on the observations so far."
)

// TranscriptSink records the events of a single conversation run.
// Implementations must tolerate being called from one goroutine at a time
// and must not fail the conversation on write errors.
type TranscriptSink interface {
	// Event appends one event. kind is one of "query", "model", "system",
	// "observation", "final" or "error".
	Event(kind, content string)
	Close() error
}

// nopSink is used when no transcript store is configured or opening one fails.
type nopSink struct{}

func (nopSink) Event(string, string) {}
func (nopSink) Close() error         { return nil }

// Driver runs complete conversation turns against a model provider and a
// tool dispatcher.
//
// A Driver is stateless between runs; each [Driver.Run] builds a fresh
// message history. Concurrent Run calls on the same Driver are serialized.
type Driver struct {
	provider llm.Provider
	disp     *dispatch.Dispatcher

	systemPrompt   string
	maxSteps       int
	temperature    float64
	maxTokens      int
	metrics        *observe.Metrics
	openTranscript func(runID string) (TranscriptSink, error)

	mu sync.Mutex
}

// Option is a functional option for configuring a Driver during construction.
type Option func(*Driver)

// WithSystemPrompt replaces the default [SystemPrompt].
func WithSystemPrompt(p string) Option {
	return func(d *Driver) { d.systemPrompt = p }
}

// WithMaxSteps sets the budget of model invocations per conversation.
// Values below 1 keep the default.
func WithMaxSteps(n int) Option {
	return func(d *Driver) {
		if n >= 1 {
			d.maxSteps = n
		}
	}
}

// WithTemperature sets the sampling temperature passed to the provider.
func WithTemperature(t float64) Option {
	return func(d *Driver) { d.temperature = t }
}

// WithMaxTokens caps the completion length passed to the provider.
// Zero means no explicit cap.
func WithMaxTokens(n int) Option {
	return func(d *Driver) { d.maxTokens = n }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithTranscripts installs a per-run transcript opener. When set, every
// [Driver.Run] opens a sink keyed by its run ID and records each event of
// the conversation. An opener error disables transcripts for that run only.
func WithTranscripts(open func(runID string) (TranscriptSink, error)) Option {
	return func(d *Driver) { d.openTranscript = open }
}

// New constructs a Driver over the given provider and dispatcher.
func New(provider llm.Provider, disp *dispatch.Dispatcher, opts ...Option) *Driver {
	d := &Driver{
		provider:     provider,
		disp:         disp,
		systemPrompt: SystemPrompt,
		maxSteps:     DefaultMaxToolSteps,
		temperature:  DefaultTemperature,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Run executes one full conversation turn for query and returns the final
// user-facing answer.
//
// The returned string is one of: the model's answer after a successful
// detail fetch, or the fixed budget advisory when the step budget runs out.
// An error is returned only when the model provider itself fails.
func (d *Driver) Run(ctx context.Context, query string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	runID := uuid.NewString()
	log := slog.With("run_id", runID)

	sink := d.beginTranscript(runID, log)
	defer sink.Close()

	d.metrics.ActiveConversations.Add(ctx, 1)
	defer d.metrics.ActiveConversations.Add(ctx, -1)

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: d.systemPrompt},
		{Role: llm.RoleUser, Content: query},
	}
	sink.Event("query", query)
	log.Info("conversation started", "query", query, "max_steps", d.maxSteps)

	fetchedOnce := false
	for step := 1; step <= d.maxSteps; step++ {
		start := time.Now()
		resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
			Messages:    msgs,
			Temperature: d.temperature,
			MaxTokens:   d.maxTokens,
		})
		d.metrics.ModelDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", d.provider.Name())))
		if err != nil {
			d.metrics.RecordModelCall(ctx, d.provider.Name(), "error")
			d.metrics.ConversationSteps.Record(ctx, int64(step))
			d.metrics.RecordConversationOutcome(ctx, "error")
			sink.Event("error", err.Error())
			return "", fmt.Errorf("agent: model completion at step %d: %w", step, err)
		}
		d.metrics.RecordModelCall(ctx, d.provider.Name(), "ok")

		reply := resp.Content
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply})
		sink.Event("model", reply)
		log.Debug("model replied", "step", step, "chars", len(reply),
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)

		call, ok := dispatch.ParseCall(reply)
		if !ok {
			if !fetchedOnce {
				// No detail fetched yet, so this cannot be a final answer.
				log.Info("no tool call before first fetch, forcing retry", "step", step)
				msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: reminderMessage})
				sink.Event("system", reminderMessage)
				continue
			}

			log.Info("conversation finished", "steps", step, "outcome", "answer")
			sink.Event("final", reply)
			d.metrics.ConversationSteps.Record(ctx, int64(step))
			d.metrics.RecordConversationOutcome(ctx, "answer")
			return reply, nil
		}

		log.Info("tool call detected", "step", step, "fn", call.Fn)
		obs := d.disp.Dispatch(ctx, call)

		if obs.FetchSucceeded() {
			fetchedOnce = true
			// Injected before the observation so the instruction is the
			// first thing the model reads after its own call.
			msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: postFetchMessage})
			sink.Event("system", postFetchMessage)
		}

		rendered := obs.Render()
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: rendered})
		sink.Event("observation", rendered)
	}

	log.Warn("tool call budget exhausted", "max_steps", d.maxSteps)
	sink.Event("final", budgetExhaustedAnswer)
	d.metrics.ConversationSteps.Record(ctx, int64(d.maxSteps))
	d.metrics.RecordConversationOutcome(ctx, "budget_exhausted")
	return budgetExhaustedAnswer, nil
}

// beginTranscript opens the per-run transcript sink, falling back to a no-op
// sink when none is configured or the opener fails.
func (d *Driver) beginTranscript(runID string, log *slog.Logger) TranscriptSink {
	if d.openTranscript == nil {
		return nopSink{}
	}
	sink, err := d.openTranscript(runID)
	if err != nil {
		log.Warn("transcript disabled for this run", "err", err)
		return nopSink{}
	}
	return sink
}
