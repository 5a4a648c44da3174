package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownProviderNames lists the model provider names the registry is
// expected to carry after startup registration. Used by [Validate] to warn
// about likely typos; unknown names are not rejected.
var KnownProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Providers: default and fallbacks must reference declared entries.
	p := cfg.Providers
	if p.Default != "" {
		if _, ok := p.Entries[p.Default]; !ok {
			errs = append(errs, fmt.Errorf("providers.default %q has no matching providers.entries key", p.Default))
		}
	}
	for i, name := range p.Fallbacks {
		if name == p.Default {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d] %q duplicates providers.default", i, name))
			continue
		}
		if _, ok := p.Entries[name]; !ok {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d] %q has no matching providers.entries key", i, name))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(p.Entries)) {
		validateProviderName(name)
	}
	if p.Default == "" && len(p.Entries) == 0 {
		slog.Warn("no model providers configured; lore questions cannot be answered")
	}

	// Catalog store selection.
	c := cfg.Catalog
	if c.Backend != "" && !c.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("catalog.backend %q is invalid; valid values: sqlite, postgres, memory, none", c.Backend))
	}
	if c.Backend == CatalogSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("catalog.sqlite_path is required when catalog.backend is sqlite"))
	}
	if c.Backend == CatalogPostgres && c.PostgresURL == "" {
		errs = append(errs, errors.New("catalog.postgres_url is required when catalog.backend is postgres"))
	}
	if c.DataDir == "" {
		slog.Warn("catalog.data_dir is empty; name lookups need a dataset built by tomescry-catalog")
	}

	// Upstream client.
	if cfg.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout %v is negative", cfg.Upstream.Timeout))
	}
	if cfg.Upstream.Retries < 0 {
		errs = append(errs, fmt.Errorf("upstream.retries %d is negative", cfg.Upstream.Retries))
	}

	// Agent tuning.
	if cfg.Agent.MaxToolSteps < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tool_steps %d is negative", cfg.Agent.MaxToolSteps))
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0.0, 2.0]", cfg.Agent.Temperature))
	}

	// Encounter state store.
	e := cfg.Encounter
	if e.Backend != "" && !e.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("encounter.backend %q is invalid; valid values: file, memory, redis", e.Backend))
	}
	if e.Backend == EncounterRedis && e.RedisAddr == "" {
		errs = append(errs, errors.New("encounter.redis_addr is required when encounter.backend is redis"))
	}
	if e.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("encounter.redis_db %d is negative", e.RedisDB))
	}

	// Discord front-end.
	if cfg.Discord.Enabled && cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required when discord.enabled is true"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in
// [KnownProviderNames].
func validateProviderName(name string) {
	if slices.Contains(KnownProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"name", name,
		"known", KnownProviderNames,
	)
}
