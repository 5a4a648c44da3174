package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tomescry/internal/config"
	"github.com/MrWong99/tomescry/pkg/provider/llm"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
log_level: info

providers:
  default: openai
  fallbacks:
    - ollama
  entries:
    openai:
      api_key: sk-test
      model: gpt-4o
      options:
        seed: 7
    ollama:
      base_url: http://localhost:11434
      model: llama3

catalog:
  data_dir: ./data
  backend: sqlite
  sqlite_path: ./data/catalog.db

upstream:
  base_url: https://api.open5e.com
  timeout: 30s
  retries: 2

cache_dir: ./cache

agent:
  max_tool_steps: 6
  temperature: 0.2
  transcript_dir: ./transcripts

encounter:
  backend: redis
  redis_addr: localhost:6379
  redis_db: 1

discord:
  enabled: true
  token: bot-token
  guild_id: "123456"

ops:
  listen_addr: ":9090"
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.LogLevel, config.LogInfo)
	}
	if cfg.Providers.Default != "openai" {
		t.Errorf("providers.default: got %q, want %q", cfg.Providers.Default, "openai")
	}
	if len(cfg.Providers.Fallbacks) != 1 || cfg.Providers.Fallbacks[0] != "ollama" {
		t.Errorf("providers.fallbacks: got %v, want [ollama]", cfg.Providers.Fallbacks)
	}
	openai, ok := cfg.Providers.Entries["openai"]
	if !ok {
		t.Fatal("providers.entries.openai is missing")
	}
	if openai.APIKey != "sk-test" {
		t.Errorf("openai api_key: got %q", openai.APIKey)
	}
	if openai.Model != "gpt-4o" {
		t.Errorf("openai model: got %q", openai.Model)
	}
	if openai.Options["seed"] != 7 {
		t.Errorf("openai options.seed: got %v, want 7", openai.Options["seed"])
	}
	if cfg.Catalog.Backend != config.CatalogSQLite {
		t.Errorf("catalog.backend: got %q, want sqlite", cfg.Catalog.Backend)
	}
	if cfg.Catalog.SQLitePath != "./data/catalog.db" {
		t.Errorf("catalog.sqlite_path: got %q", cfg.Catalog.SQLitePath)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("upstream.timeout: got %v, want 30s", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.Retries != 2 {
		t.Errorf("upstream.retries: got %d, want 2", cfg.Upstream.Retries)
	}
	if cfg.CacheDir != "./cache" {
		t.Errorf("cache_dir: got %q", cfg.CacheDir)
	}
	if cfg.Agent.MaxToolSteps != 6 {
		t.Errorf("agent.max_tool_steps: got %d, want 6", cfg.Agent.MaxToolSteps)
	}
	if cfg.Encounter.Backend != config.EncounterRedis {
		t.Errorf("encounter.backend: got %q, want redis", cfg.Encounter.Backend)
	}
	if cfg.Encounter.RedisDB != 1 {
		t.Errorf("encounter.redis_db: got %d, want 1", cfg.Encounter.RedisDB)
	}
	if !cfg.Discord.Enabled {
		t.Error("discord.enabled: got false, want true")
	}
	if cfg.Discord.GuildID != "123456" {
		t.Errorf("discord.guild_id: got %q", cfg.Discord.GuildID)
	}
	if cfg.Ops.ListenAddr != ":9090" {
		t.Errorf("ops.listen_addr: got %q", cfg.Ops.ListenAddr)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// An empty config should succeed (no required top-level fields).
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
log_levle: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_DefaultProviderUndeclared(t *testing.T) {
	yaml := `
providers:
  default: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for undeclared default provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.default") {
		t.Errorf("error should mention providers.default, got: %v", err)
	}
}

func TestValidate_FallbackUndeclared(t *testing.T) {
	yaml := `
providers:
  default: openai
  fallbacks:
    - ghost
  entries:
    openai:
      api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for undeclared fallback provider, got nil")
	}
	if !strings.Contains(err.Error(), "fallbacks[0]") {
		t.Errorf("error should mention fallbacks[0], got: %v", err)
	}
}

func TestValidate_FallbackDuplicatesDefault(t *testing.T) {
	yaml := `
providers:
  default: openai
  fallbacks:
    - openai
  entries:
    openai:
      api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback duplicating default, got nil")
	}
}

func TestValidate_InvalidCatalogBackend(t *testing.T) {
	yaml := `
catalog:
  backend: mysql
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid catalog backend, got nil")
	}
	if !strings.Contains(err.Error(), "catalog.backend") {
		t.Errorf("error should mention catalog.backend, got: %v", err)
	}
}

func TestValidate_SQLiteNeedsPath(t *testing.T) {
	yaml := `
catalog:
  backend: sqlite
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for sqlite backend without path, got nil")
	}
	if !strings.Contains(err.Error(), "sqlite_path") {
		t.Errorf("error should mention sqlite_path, got: %v", err)
	}
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	yaml := `
catalog:
  backend: postgres
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for postgres backend without URL, got nil")
	}
	if !strings.Contains(err.Error(), "postgres_url") {
		t.Errorf("error should mention postgres_url, got: %v", err)
	}
}

func TestValidate_NegativeRetries(t *testing.T) {
	yaml := `
upstream:
  retries: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative retries, got nil")
	}
}

func TestValidate_TemperatureOutOfRange(t *testing.T) {
	yaml := `
agent:
  temperature: 3.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range temperature, got nil")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should mention temperature, got: %v", err)
	}
}

func TestValidate_InvalidEncounterBackend(t *testing.T) {
	yaml := `
encounter:
  backend: dynamodb
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid encounter backend, got nil")
	}
}

func TestValidate_RedisNeedsAddr(t *testing.T) {
	yaml := `
encounter:
  backend: redis
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for redis backend without address, got nil")
	}
	if !strings.Contains(err.Error(), "redis_addr") {
		t.Errorf("error should mention redis_addr, got: %v", err)
	}
}

func TestValidate_DiscordNeedsToken(t *testing.T) {
	yaml := `
discord:
  enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled discord without token, got nil")
	}
	if !strings.Contains(err.Error(), "discord.token") {
		t.Errorf("error should mention discord.token, got: %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.Create("nonexistent", config.ProviderEntry{})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubProvider{}
	reg.Register("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})
	got, err := reg.Create("stub", config.ProviderEntry{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_FactoryReceivesEntry(t *testing.T) {
	reg := config.NewRegistry()
	var seen config.ProviderEntry
	reg.Register("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		seen = e
		return &stubProvider{}, nil
	})
	entry := config.ProviderEntry{APIKey: "sk", Model: "gpt-4o"}
	if _, err := reg.Create("stub", entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.APIKey != "sk" || seen.Model != "gpt-4o" {
		t.Errorf("factory received %+v, want %+v", seen, entry)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.Register("broken", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.Create("broken", config.ProviderEntry{})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := config.NewRegistry()
	reg.Register("a", func(config.ProviderEntry) (llm.Provider, error) { return &stubProvider{}, nil })
	reg.Register("b", func(config.ProviderEntry) (llm.Provider, error) { return &stubProvider{}, nil })

	names := reg.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d: %v", len(names), names)
	}
}

// ── Stub implementation (satisfies llm.Provider for the compiler) ─────────────

type stubProvider struct{}

func (s *stubProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}
func (s *stubProvider) Name() string { return "stub" }
