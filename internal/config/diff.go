package config

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
//
// Changed holds dot-separated key paths only, never values, so the diff is
// safe to log even when secrets (api_key, token) changed. The log level is
// the only setting applied without a restart; everything else sets
// RestartNeeded.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Changed lists the key paths that differ, in schema order.
	Changed []string

	// RestartNeeded is true when at least one changed key cannot be
	// hot-reloaded.
	RestartNeeded bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
		d.Changed = append(d.Changed, "log_level")
	}

	d.note(old.Providers.Default != new.Providers.Default, "providers.default")
	d.note(!slices.Equal(old.Providers.Fallbacks, new.Providers.Fallbacks), "providers.fallbacks")
	d.diffEntries(old.Providers.Entries, new.Providers.Entries)

	d.note(old.Catalog.DataDir != new.Catalog.DataDir, "catalog.data_dir")
	d.note(old.Catalog.Backend != new.Catalog.Backend, "catalog.backend")
	d.note(old.Catalog.SQLitePath != new.Catalog.SQLitePath, "catalog.sqlite_path")
	d.note(old.Catalog.PostgresURL != new.Catalog.PostgresURL, "catalog.postgres_url")

	d.note(old.Upstream.BaseURL != new.Upstream.BaseURL, "upstream.base_url")
	d.note(old.Upstream.Timeout != new.Upstream.Timeout, "upstream.timeout")
	d.note(old.Upstream.Retries != new.Upstream.Retries, "upstream.retries")

	d.note(old.CacheDir != new.CacheDir, "cache_dir")

	d.note(old.Agent.MaxToolSteps != new.Agent.MaxToolSteps, "agent.max_tool_steps")
	d.note(old.Agent.Temperature != new.Agent.Temperature, "agent.temperature")
	d.note(old.Agent.TranscriptDir != new.Agent.TranscriptDir, "agent.transcript_dir")

	d.note(old.Encounter.Backend != new.Encounter.Backend, "encounter.backend")
	d.note(old.Encounter.Path != new.Encounter.Path, "encounter.path")
	d.note(old.Encounter.RedisAddr != new.Encounter.RedisAddr, "encounter.redis_addr")
	d.note(old.Encounter.RedisDB != new.Encounter.RedisDB, "encounter.redis_db")
	d.note(old.Encounter.RedisKey != new.Encounter.RedisKey, "encounter.redis_key")

	d.note(old.Discord.Enabled != new.Discord.Enabled, "discord.enabled")
	d.note(old.Discord.Token != new.Discord.Token, "discord.token")
	d.note(old.Discord.GuildID != new.Discord.GuildID, "discord.guild_id")
	d.note(old.Discord.GMRoleID != new.Discord.GMRoleID, "discord.gm_role_id")

	d.note(old.Ops.ListenAddr != new.Ops.ListenAddr, "ops.listen_addr")

	return d
}

// note records key as changed when changed is true. Any key other than the
// log level requires a restart to take effect.
func (d *ConfigDiff) note(changed bool, key string) {
	if !changed {
		return
	}
	d.Changed = append(d.Changed, key)
	d.RestartNeeded = true
}

// diffEntries compares the provider entry maps key by key.
func (d *ConfigDiff) diffEntries(old, new map[string]ProviderEntry) {
	union := make(map[string]struct{}, len(old)+len(new))
	for name := range old {
		union[name] = struct{}{}
	}
	for name := range new {
		union[name] = struct{}{}
	}

	for _, name := range slices.Sorted(maps.Keys(union)) {
		oldE, inOld := old[name]
		newE, inNew := new[name]
		key := fmt.Sprintf("providers.entries.%s", name)

		switch {
		case !inNew:
			d.note(true, key+" (removed)")
		case !inOld:
			d.note(true, key+" (added)")
		default:
			d.note(oldE.APIKey != newE.APIKey, key+".api_key")
			d.note(oldE.BaseURL != newE.BaseURL, key+".base_url")
			d.note(oldE.Model != newE.Model, key+".model")
			d.note(!reflect.DeepEqual(oldE.Options, newE.Options), key+".options")
		}
	}
}
