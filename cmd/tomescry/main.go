// Command tomescry runs the tabletop reference assistant: a conversation
// driver over the local catalog, optionally fronted by a Discord bot, plus
// an operational HTTP listener.
//
// With -ask the process answers a single question on the command line and
// exits; without it the process serves until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/tomescry/internal/app"
	"github.com/MrWong99/tomescry/internal/config"
	discordbot "github.com/MrWong99/tomescry/internal/discord"
	"github.com/MrWong99/tomescry/internal/discord/commands"
	"github.com/MrWong99/tomescry/internal/observe"
	"github.com/MrWong99/tomescry/internal/resilience"
	"github.com/MrWong99/tomescry/pkg/provider/llm"
	"github.com/MrWong99/tomescry/pkg/provider/llm/anyllm"
	openaiprovider "github.com/MrWong99/tomescry/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	ask := flag.String("ask", "", "answer a single question and exit instead of serving")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tomescry: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tomescry: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		override := config.LogLevel(*logLevel)
		if !override.IsValid() {
			fmt.Fprintf(os.Stderr, "tomescry: -log-level %q is invalid; valid values: debug, info, warn, error\n", *logLevel)
			return 1
		}
		cfg.LogLevel = override
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, levelVar := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tomescry starting",
		"config", *configPath,
		"catalog_backend", cfg.Catalog.Backend,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "tomescry"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildProvider(cfg, reg)
	if err != nil {
		slog.Error("failed to build model provider", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, provider)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// One-shot mode: answer and exit, no Discord, no serving.
	if *ask != "" {
		answer, err := application.Driver().Run(ctx, *ask)
		shutdownApp(application)
		if err != nil {
			slog.Error("conversation failed", "err", err)
			return 1
		}
		fmt.Println(answer)
		return 0
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	// Only the log level applies without a restart; everything else is
	// reported so the operator knows a restart is due.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.RestartNeeded {
			slog.Warn("config changed; restart required to apply", "keys", d.Changed)
		}
	})
	if err != nil {
		slog.Warn("config hot-reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Discord bot (optional) ────────────────────────────────────────────────
	var bot *discordbot.Bot
	if cfg.Discord.Enabled {
		bot, err = discordbot.New(ctx, discordbot.Config{
			Token:    cfg.Discord.Token,
			GuildID:  cfg.Discord.GuildID,
			GMRoleID: cfg.Discord.GMRoleID,
		})
		if err != nil {
			slog.Error("failed to create Discord bot", "err", err)
			shutdownApp(application)
			return 1
		}

		commands.NewLoreCommand(application.Driver()).Register(bot.Router())
		commands.NewRollCommand().Register(bot.Router())
		commands.NewEncounterCommands(bot.Permissions(), application.Tracker()).Register(bot.Router())
		slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("discord bot error", "err", err)
			}
		}()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	// Close the Discord bot first (unregister commands, disconnect).
	if bot != nil {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}

	shutdownApp(application)
	slog.Info("goodbye")
	return 0
}

// shutdownApp tears the application down with a fixed deadline.
func shutdownApp(application *app.App) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in model provider factories into
// reg. "openai" uses the native SDK client; everything else goes through the
// any-llm multiplexer.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaiprovider.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaiprovider.WithBaseURL(entry.BaseURL))
		}
		return openaiprovider.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp and llamafile
	// share the same shape: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.Register(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.Register("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	for _, name := range reg.Names() {
		slog.Debug("registered provider", "name", name)
	}
}

// buildProvider instantiates the default provider and its fallbacks from cfg
// and wraps them in a circuit-breaking chain when fallbacks exist.
func buildProvider(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	name := cfg.Providers.Default
	if name == "" {
		return nil, errors.New("providers.default is not configured")
	}

	primary, err := reg.Create(name, cfg.Providers.Entries[name])
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", name, err)
	}
	slog.Info("provider created", "name", name, "model", cfg.Providers.Entries[name].Model)

	var fallbacks []llm.Provider
	for _, fbName := range cfg.Providers.Fallbacks {
		fb, err := reg.Create(fbName, cfg.Providers.Entries[fbName])
		if err != nil {
			return nil, fmt.Errorf("create fallback provider %q: %w", fbName, err)
		}
		fallbacks = append(fallbacks, fb)
		slog.Info("fallback provider created", "name", fbName, "model", cfg.Providers.Entries[fbName].Model)
	}

	if len(fallbacks) == 0 {
		return primary, nil
	}
	return resilience.NewChain(resilience.CircuitBreakerConfig{}, primary, fallbacks...), nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Tomescry — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", providerSummary(cfg))
	printRow("Fallbacks", fmt.Sprintf("%d", len(cfg.Providers.Fallbacks)))
	printRow("Catalog", string(orDefault(string(cfg.Catalog.Backend), "none")))
	printRow("Data dir", orDefault(cfg.Catalog.DataDir, "(not set)"))
	printRow("Cache dir", orDefault(cfg.CacheDir, "cache"))
	printRow("Encounter", orDefault(string(cfg.Encounter.Backend), "file"))
	if cfg.Discord.Enabled {
		printRow("Discord", "enabled")
	} else {
		printRow("Discord", "(disabled)")
	}
	printRow("Ops addr", orDefault(cfg.Ops.ListenAddr, "(disabled)"))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerSummary(cfg *config.Config) string {
	name := cfg.Providers.Default
	if name == "" {
		return "(not configured)"
	}
	if model := cfg.Providers.Entries[name].Model; model != "" {
		return name + " / " + model
	}
	return name
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s : %-19s  ║\n", kind, value)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger behind a [slog.LevelVar] so the
// config watcher can change the level at runtime.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})), levelVar
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
