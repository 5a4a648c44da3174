// Package dispatch extracts tool calls from model replies and routes them
// to the catalog tools. Every dispatched call produces an [Observation],
// success or not: tool failures are folded into the observation's error
// field so a broken lookup never aborts the surrounding conversation.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/fetchcache"
	"github.com/MrWong99/tomescry/internal/observe"
)

// Function names recognized on the wire.
const (
	FnLookMonsterTable = "look_monster_table"
	FnLookTable        = "look_table"
	FnSearchTable      = "search_table"
	FnFetchAndCache    = "fetch_and_cache"
)

// Call is one parsed tool invocation from a model reply.
type Call struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

// Observation is the structured record of a dispatched call that is fed
// back to the model. Exactly one of Result and Err is set.
type Observation struct {
	Fn     string         `json:"fn"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// FetchSucceeded reports whether the observation records a successful
// detail fetch. The conversation driver uses this to flip into its
// answer-now phase.
func (o *Observation) FetchSucceeded() bool {
	return o.Fn == FnFetchAndCache && o.Err == ""
}

// Render serializes the observation as the system message content the
// model receives.
func (o *Observation) Render() string {
	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return `Observation: {"error":"observation could not be serialized"}`
	}
	return "Observation: " + string(b)
}

// UnknownToolError reports a call block naming a function outside the
// recognized set. It is surfaced as an observation error so the model can
// self-correct.
type UnknownToolError struct {
	Fn string
}

func (e *UnknownToolError) Error() string {
	return "unknown tool: " + e.Fn
}

// Dispatcher routes parsed calls to the name search, the resolver and the
// detail cache.
type Dispatcher struct {
	searcher *catalog.Searcher
	resolver *catalog.Resolver
	cache    *fetchcache.Cache
	metrics  *observe.Metrics
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics instance used to record tool calls.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a [Dispatcher] over the three catalog tools.
func New(searcher *catalog.Searcher, resolver *catalog.Resolver, cache *fetchcache.Cache, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		searcher: searcher,
		resolver: resolver,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Dispatch executes one call and wraps its outcome in an [Observation].
// It never returns an error: failures inside a tool become the
// observation's error field.
func (d *Dispatcher) Dispatch(ctx context.Context, call *Call) *Observation {
	obs := &Observation{Fn: call.Fn, Args: call.Args}

	ctx, span := observe.StartSpan(ctx, "tool "+call.Fn)
	defer span.End()

	start := time.Now()
	result, err := d.invoke(ctx, call)
	d.metrics.ToolDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("tool", call.Fn)))

	status := "ok"
	if err != nil {
		status = "error"
		obs.Err = err.Error()
	} else {
		obs.Result = result
	}
	d.metrics.RecordToolCall(ctx, call.Fn, status)
	return obs
}

type lookArgs struct {
	Type  catalog.ResourceType `json:"type"`
	Query string               `json:"query"`
	Limit int                  `json:"limit"`
}

type resolveArgs struct {
	Type       catalog.ResourceType `json:"type"`
	NameOrSlug string               `json:"name_or_slug"`
	PreferDoc  string               `json:"prefer_doc"`
}

type fetchArgs struct {
	Type catalog.ResourceType `json:"type"`
	Slug string               `json:"slug"`
}

func (d *Dispatcher) invoke(ctx context.Context, call *Call) (any, error) {
	switch call.Fn {
	case FnLookMonsterTable:
		var a lookArgs
		if err := decodeArgs(call.Args, &a); err != nil {
			return nil, err
		}
		return d.searcher.Search(catalog.TypeMonsters, a.Query, a.Limit)

	case FnLookTable:
		var a lookArgs
		if err := decodeArgs(call.Args, &a); err != nil {
			return nil, err
		}
		return d.searcher.Search(orMonsters(a.Type), a.Query, a.Limit)

	case FnSearchTable:
		var a resolveArgs
		if err := decodeArgs(call.Args, &a); err != nil {
			return nil, err
		}
		return d.resolver.Resolve(ctx, orMonsters(a.Type), a.NameOrSlug, a.PreferDoc)

	case FnFetchAndCache:
		var a fetchArgs
		if err := decodeArgs(call.Args, &a); err != nil {
			return nil, err
		}
		return d.cache.FetchDetail(ctx, orMonsters(a.Type), a.Slug)

	default:
		return nil, &UnknownToolError{Fn: call.Fn}
	}
}

// decodeArgs maps the loosely typed argument object onto a per-function
// struct. Wrong-typed values fail here and become observation errors.
func decodeArgs(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func orMonsters(typ catalog.ResourceType) catalog.ResourceType {
	if typ == "" {
		return catalog.TypeMonsters
	}
	return typ
}
