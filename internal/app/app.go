// Package app wires all Tomescry subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the ops listener and blocks until the context is
// cancelled, and Shutdown tears everything down in order.
//
// The model provider comes from main.go (built via the config registry and
// wrapped in the resilience chain). For testing, inject mock implementations
// via functional options (WithCatalogStore, WithEncounterStore, etc.). When
// an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/tomescry/internal/agent"
	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/config"
	"github.com/MrWong99/tomescry/internal/dispatch"
	"github.com/MrWong99/tomescry/internal/encounter"
	"github.com/MrWong99/tomescry/internal/encounter/statestore"
	"github.com/MrWong99/tomescry/internal/fetchcache"
	"github.com/MrWong99/tomescry/internal/health"
	"github.com/MrWong99/tomescry/internal/observe"
	"github.com/MrWong99/tomescry/internal/open5e"
	"github.com/MrWong99/tomescry/internal/session"
	"github.com/MrWong99/tomescry/pkg/provider/llm"
)

// App owns all subsystem lifetimes and orchestrates the Tomescry lookup and
// conversation pipeline.
type App struct {
	cfg      *config.Config
	provider llm.Provider

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics     *observe.Metrics
	library     *catalog.Library
	files       *catalog.FlatFiles
	store       catalog.Store
	searcher    *catalog.Searcher
	resolver    *catalog.Resolver
	upstream    *open5e.Client
	cache       *fetchcache.Cache
	dispatcher  *dispatch.Dispatcher
	transcripts *session.Store
	driver      *agent.Driver
	encStore    statestore.Store
	tracker     *encounter.Tracker
	ops         *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalogStore injects an indexed catalog store instead of opening one
// from config. The caller retains ownership; Shutdown will not close it.
func WithCatalogStore(s catalog.Store) Option {
	return func(a *App) { a.store = s }
}

// WithEncounterStore injects an encounter state store instead of opening one
// from config. The caller retains ownership; Shutdown will not close it.
func WithEncounterStore(s statestore.Store) Option {
	return func(a *App) { a.encStore = s }
}

// WithMetrics injects a metrics instance instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The provider is the
// model backend that drives conversations (main.go builds it via the config
// registry). Use Option functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: lookup table loading,
// catalog store connection, upstream client and detail cache construction,
// conversation driver assembly, encounter store opening, and ops listener
// setup. The ops listener is bound in Run, not here.
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		provider: provider,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Reference catalog ─────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 3. Upstream client + detail cache ────────────────────────────────
	a.initUpstream()

	// ── 4. Tool dispatcher ───────────────────────────────────────────────
	a.dispatcher = dispatch.New(a.searcher, a.resolver, a.cache, dispatch.WithMetrics(a.metrics))

	// ── 5. Conversation driver ───────────────────────────────────────────
	if err := a.initDriver(); err != nil {
		return nil, fmt.Errorf("app: init driver: %w", err)
	}

	// ── 6. Encounter tracker ─────────────────────────────────────────────
	if err := a.initEncounter(); err != nil {
		return nil, fmt.Errorf("app: init encounter: %w", err)
	}

	// ── 7. Ops listener ──────────────────────────────────────────────────
	a.initOps()

	return a, nil
}

// Driver returns the conversation driver, for front-ends that answer
// questions (the /lore command, the -ask flag).
func (a *App) Driver() *agent.Driver {
	return a.driver
}

// Tracker returns the encounter tracker, for front-ends that mutate combat
// state (the /encounter command group).
func (a *App) Tracker() *encounter.Tracker {
	return a.tracker
}

// Dispatcher returns the tool dispatcher. Exposed for one-shot lookups that
// bypass the conversation driver.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCatalog loads the lookup tables, opens the configured indexed store,
// and builds the searcher and resolver on top of them.
func (a *App) initCatalog(ctx context.Context) error {
	dataDir := a.cfg.Catalog.DataDir

	library, err := catalog.LoadLibrary(dataDir)
	if err != nil {
		return fmt.Errorf("load lookup tables from %q: %w", dataDir, err)
	}
	a.library = library
	library.StartWatching(0)
	a.closers = append(a.closers, func() error {
		library.Stop()
		return nil
	})

	names := 0
	for _, typ := range library.Types() {
		if idx, ok := library.Index(typ); ok {
			names += idx.Len()
		}
	}
	slog.Info("lookup tables loaded", "dir", dataDir, "names", names)

	a.files = catalog.NewFlatFiles(dataDir)

	if a.store == nil {
		switch a.cfg.Catalog.Backend {
		case config.CatalogSQLite:
			store, err := catalog.OpenSQLite(a.cfg.Catalog.SQLitePath)
			if err != nil {
				return err
			}
			a.store = store
			a.closers = append(a.closers, store.Close)
		case config.CatalogPostgres:
			pool, err := pgxpool.New(ctx, a.cfg.Catalog.PostgresURL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			store := catalog.NewPostgresStore(pool)
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return err
			}
			a.store = store
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
		case config.CatalogMemory:
			a.store = catalog.NewMemStore()
		case config.CatalogNone, "":
			// Lookups run on the flat files and lookup tables alone.
		default:
			return fmt.Errorf("unknown catalog backend %q", a.cfg.Catalog.Backend)
		}
		if a.store != nil {
			slog.Info("catalog store opened", "backend", a.cfg.Catalog.Backend)
		}
	}

	a.searcher = catalog.NewSearcher(a.library)

	ropts := []catalog.ResolverOption{
		catalog.WithLibrary(a.library),
		catalog.WithResolverMetrics(a.metrics),
	}
	if a.store != nil {
		ropts = append(ropts, catalog.WithStore(a.store))
	}
	a.resolver = catalog.NewResolver(a.files, ropts...)

	return nil
}

// initUpstream builds the Open5e client and the detail cache in front of it.
func (a *App) initUpstream() {
	copts := []open5e.Option{open5e.WithMetrics(a.metrics)}
	if a.cfg.Upstream.Timeout > 0 {
		copts = append(copts, open5e.WithHTTPClient(&http.Client{Timeout: a.cfg.Upstream.Timeout}))
	}
	if a.cfg.Upstream.Retries > 0 {
		copts = append(copts, open5e.WithRetries(a.cfg.Upstream.Retries))
	}
	a.upstream = open5e.New(a.cfg.Upstream.BaseURL, copts...)

	cacheDir := a.cfg.CacheDir
	if cacheDir == "" {
		cacheDir = "cache"
	}
	fopts := []fetchcache.Option{fetchcache.WithMetrics(a.metrics)}
	if a.store != nil {
		fopts = append(fopts, fetchcache.WithStore(a.store))
	}
	a.cache = fetchcache.New(cacheDir, a.upstream, a.files, fopts...)
}

// initDriver sets up the transcript store and the conversation driver.
func (a *App) initDriver() error {
	if a.provider == nil {
		return errors.New("a model provider is required; configure providers.default")
	}

	dir := a.cfg.Agent.TranscriptDir
	if dir == "" {
		dir = "transcripts"
	}
	transcripts, err := session.NewStore(dir)
	if err != nil {
		return err
	}
	a.transcripts = transcripts

	dopts := []agent.Option{
		agent.WithMetrics(a.metrics),
		agent.WithTranscripts(func(runID string) (agent.TranscriptSink, error) {
			t, err := transcripts.Begin(runID)
			if err != nil {
				return nil, err
			}
			return t, nil
		}),
	}
	if a.cfg.Agent.MaxToolSteps > 0 {
		dopts = append(dopts, agent.WithMaxSteps(a.cfg.Agent.MaxToolSteps))
	}
	if a.cfg.Agent.Temperature > 0 {
		dopts = append(dopts, agent.WithTemperature(a.cfg.Agent.Temperature))
	}
	a.driver = agent.New(a.provider, a.dispatcher, dopts...)

	slog.Info("conversation driver ready", "provider", a.provider.Name(), "transcripts", transcripts.Dir())
	return nil
}

// initEncounter opens the configured state store and builds the tracker.
func (a *App) initEncounter() error {
	if a.encStore == nil {
		switch a.cfg.Encounter.Backend {
		case config.EncounterFile, "":
			path := a.cfg.Encounter.Path
			if path == "" {
				path = "encounter_state.json"
			}
			store, err := statestore.NewFileStore(path)
			if err != nil {
				return err
			}
			a.encStore = store
			a.closers = append(a.closers, store.Close)
		case config.EncounterMemory:
			store := statestore.NewMemStore()
			a.encStore = store
			a.closers = append(a.closers, store.Close)
		case config.EncounterRedis:
			client := redis.NewClient(&redis.Options{
				Addr: a.cfg.Encounter.RedisAddr,
				DB:   a.cfg.Encounter.RedisDB,
			})
			store := statestore.NewRedisStore(client, a.cfg.Encounter.RedisKey)
			a.encStore = store
			a.closers = append(a.closers, store.Close)
		default:
			return fmt.Errorf("unknown encounter backend %q", a.cfg.Encounter.Backend)
		}
		slog.Info("encounter store opened", "backend", a.cfg.Encounter.Backend)
	}

	a.tracker = encounter.New(a.encStore)
	return nil
}

// initOps assembles the operational HTTP server serving /healthz, /readyz
// and /metrics. The listener stays nil when no address is configured.
func (a *App) initOps() {
	if a.cfg.Ops.ListenAddr == "" {
		return
	}

	cacheDir := a.cfg.CacheDir
	if cacheDir == "" {
		cacheDir = "cache"
	}
	var checkers []health.Checker
	if a.store != nil {
		checkers = append(checkers, health.CatalogCheck(a.store))
	}
	checkers = append(checkers,
		health.CacheDirCheck(cacheDir),
		health.EncounterCheck(a.encStore),
	)

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.ops = &http.Server{
		Addr:              a.cfg.Ops.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the ops listener (when configured) and blocks until ctx is
// cancelled. When ctx is done, Run returns context.Canceled (or the
// underlying cause); when the ops listener fails to serve, Run returns its
// error.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	if a.ops != nil {
		go func() {
			slog.Info("ops listener started", "addr", a.ops.Addr)
			if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	slog.Info("app running", "provider", a.provider.Name(), "catalog", a.cfg.Catalog.Backend, "encounter", a.cfg.Encounter.Backend)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-serveErr:
		return fmt.Errorf("app: ops listener: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop the ops listener first so readiness flips before stores close.
		if a.ops != nil {
			if err := a.ops.Shutdown(ctx); err != nil {
				slog.Warn("ops listener shutdown error", "err", err)
			}
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
