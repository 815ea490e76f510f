// Package config loads wavemcp's layered configuration: defaults, then an
// optional TOML file, then environment variables (highest precedence).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/wavemcp/wavemcp/internal/evr"
	"github.com/wavemcp/wavemcp/internal/sync"
)

// Config holds all configuration for the wavemcp server.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Lock      LockConfig      `toml:"lock"`
	Sync      SyncConfig      `toml:"sync"`
	EVR       EVRConfig       `toml:"evr"`
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port (default: 21452). Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address (default: "0.0.0.0"). Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins (default: "*").
	CORSOrigins string `toml:"cors_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// LockConfig tunes the cross-process sentinel-file locking in package
// lock.
type LockConfig struct {
	// RetryIntervalMS is how long to sleep between acquisition attempts.
	RetryIntervalMS int `toml:"retry_interval_ms"`
	// DefaultTimeoutS bounds how long Acquire waits for a contended lock
	// before giving up.
	DefaultTimeoutS int `toml:"default_timeout_s"`
}

// SyncConfig tunes the sync engine: its per-request memoization
// cache and its default conflict-resolution strategy.
type SyncConfig struct {
	// CacheTTLMinutes is how long a computed sync.Result stays memoized
	// per requestId before Cache evicts it.
	CacheTTLMinutes int `toml:"cache_ttl_minutes"`
	// Strategy is one of "ts_only" or "etag_first_then_ts".
	Strategy string `toml:"strategy"`
}

// EVRConfig tunes the EVR gate's runtime-freshness rule.
type EVRConfig struct {
	// RequireRerunAfterPlanStart, when true, requires a runtime-class EVR
	// to carry a pass run timestamped at or after its owning plan's most
	// recent transition to in_progress (or a second independent run)
	// before the gate considers it ready.
	RequireRerunAfterPlanStart bool `toml:"require_rerun_after_plan_start"`
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. WAVEMCP_CONFIG environment variable
//  3. ./wavemcp.toml (current directory)
//  4. ~/.config/wavemcp/wavemcp.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Name:    "wavemcp",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "21452",
			Host:        "0.0.0.0",
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level: "info",
		},
		Lock: LockConfig{
			RetryIntervalMS: 100,
			DefaultTimeoutS: 10,
		},
		Sync: SyncConfig{
			CacheTTLMinutes: 5,
			Strategy:        string(sync.StrategyETagFirstThenTS),
		},
		EVR: EVRConfig{
			RequireRerunAfterPlanStart: evr.RequireRerunAfterPlanStartDefault,
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath determines which config file to use. Returns empty string
// if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("WAVEMCP_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("wavemcp.toml"); err == nil {
		return "wavemcp.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/wavemcp/wavemcp.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("WAVEMCP_TRANSPORT", &c.Transport.Mode)
	envOverride("WAVEMCP_PORT", &c.Transport.Port)
	envOverride("WAVEMCP_HOST", &c.Transport.Host)
	envOverride("WAVEMCP_CORS_ORIGINS", &c.Transport.CORSOrigins)
	envOverride("WAVEMCP_LOG_LEVEL", &c.Log.Level)
	envOverride("WAVEMCP_SYNC_STRATEGY", &c.Sync.Strategy)
	envOverrideInt("WAVEMCP_LOCK_RETRY_INTERVAL_MS", &c.Lock.RetryIntervalMS)
	envOverrideInt("WAVEMCP_LOCK_DEFAULT_TIMEOUT_S", &c.Lock.DefaultTimeoutS)
	envOverrideInt("WAVEMCP_SYNC_CACHE_TTL_MINUTES", &c.Sync.CacheTTLMinutes)
	envOverrideBool("WAVEMCP_EVR_REQUIRE_RERUN_AFTER_PLAN_START", &c.EVR.RequireRerunAfterPlanStart)
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
		// ok
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}
	switch sync.Strategy(c.Sync.Strategy) {
	case sync.StrategyTSOnly, sync.StrategyETagFirstThenTS:
		return nil
	default:
		return fmt.Errorf("invalid sync strategy: %q (must be \"ts_only\" or \"etag_first_then_ts\")", c.Sync.Strategy)
	}
}

// envOverride sets *dst to the value of the named env var, if it is non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envOverrideInt sets *dst to the named env var parsed as an integer, if
// present and well-formed; a malformed value is silently ignored rather
// than failing startup.
func envOverrideInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// envOverrideBool sets *dst to the named env var parsed as a boolean, if
// present and well-formed.
func envOverrideBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}
