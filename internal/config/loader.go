// Package config provides centralized configuration management for intake.
// Values are layered: in-code defaults, the optional YAML config file,
// environment variables (via gofulmen/config env specs), then runtime
// overrides from CLI flags.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"

	"github.com/artofficial/intake/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// TestModeEnv enables deterministic test mode when set to exactly "1".
const TestModeEnv = "NEWSLETTER_TEST_MODE"

// Defaults returns the in-code default layer.
func Defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
		},
		"newsletter": map[string]any{
			"provider":              "",
			"rate_limit_per_ip":     10,
			"rate_limit_window_sec": 60,
			"test_mode":             false,
			"provider_timeout":      "5s",
			"breaker": map[string]any{
				"enabled":      true,
				"max_failures": 5,
				"open_timeout": "30s",
			},
		},
		"journal": map[string]any{
			"enabled": false,
		},
		"logging": map[string]any{
			"level": "info",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
	}
}

// Load builds the configuration from defaults, environment and runtime
// overrides, validates it and stores it as the current config.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadLayered(ctx, nil, runtimeOverrides...)
}

// LoadLayered is Load with a config file layer applied between the defaults
// and the environment.
func LoadLayered(ctx context.Context, fileLayer map[string]any, runtimeOverrides ...map[string]any) (*Config, error) {
	identity, err := appid.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load app identity: %w", err)
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs(identity.Prefix()))
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	applyTestModeEnv(envOverrides)

	merged := Defaults()
	mergeInto(merged, fileLayer)
	mergeInto(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeInto(merged, overrides)
	}

	if err := validateLayers(merged); err != nil {
		return nil, err
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}

	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.URL) == "" && strings.TrimSpace(cfg.Journal.Path) == "" {
		cfg.Journal.Path = DefaultJournalPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

func decode(merged map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping.
// Provider credentials keep the unprefixed names used by existing deployments.
func getEnvSpecs(prefix string) []EnvVarSpec {
	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},

		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Journal (libsql)
		{Name: prefix + "JOURNAL_ENABLED", Path: []string{"journal", "enabled"}, Type: EnvBool},
		{Name: prefix + "JOURNAL_PATH", Path: []string{"journal", "path"}, Type: EnvString},
		{Name: prefix + "JOURNAL_URL", Path: []string{"journal", "url"}, Type: EnvString},
		{Name: prefix + "JOURNAL_AUTH_TOKEN", Path: []string{"journal", "auth_token"}, Type: EnvString},

		// Newsletter pipeline
		{Name: "NEWSLETTER_PROVIDER", Path: []string{"newsletter", "provider"}, Type: EnvString},
		{Name: "NEWSLETTER_RATE_LIMIT_PER_IP", Path: []string{"newsletter", "rate_limit_per_ip"}, Type: EnvInt},
		{Name: "NEWSLETTER_RATE_LIMIT_WINDOW_SEC", Path: []string{"newsletter", "rate_limit_window_sec"}, Type: EnvInt},
		{Name: prefix + "PROVIDER_TIMEOUT", Path: []string{"newsletter", "provider_timeout"}, Type: EnvString},
		{Name: prefix + "BREAKER_ENABLED", Path: []string{"newsletter", "breaker", "enabled"}, Type: EnvBool},
		{Name: prefix + "BREAKER_MAX_FAILURES", Path: []string{"newsletter", "breaker", "max_failures"}, Type: EnvInt},
		{Name: prefix + "BREAKER_OPEN_TIMEOUT", Path: []string{"newsletter", "breaker", "open_timeout"}, Type: EnvString},

		// Ghost
		{Name: "GHOST_API_URL", Path: []string{"ghost", "api_url"}, Type: EnvString},
		{Name: "GHOST_CONTENT_API_KEY", Path: []string{"ghost", "content_api_key"}, Type: EnvString},
		{Name: "GHOST_ADMIN_API_KEY", Path: []string{"ghost", "admin_api_key"}, Type: EnvString},
		{Name: "GHOST_NEWSLETTER_ID", Path: []string{"ghost", "newsletter_id"}, Type: EnvString},

		// ConvertKit
		{Name: "CONVERTKIT_API_KEY", Path: []string{"convertkit", "api_key"}, Type: EnvString},
		{Name: "CONVERTKIT_FORM_ID", Path: []string{"convertkit", "form_id"}, Type: EnvString},
		{Name: "CONVERTKIT_API_BASE", Path: []string{"convertkit", "api_base"}, Type: EnvString},
	}
}

// applyTestModeEnv maps NEWSLETTER_TEST_MODE onto newsletter.test_mode.
// Only the literal "1" enables it.
func applyTestModeEnv(envOverrides map[string]any) {
	value, ok := os.LookupEnv(TestModeEnv)
	if !ok {
		return
	}
	newsletter := ensureMap(envOverrides, "newsletter")
	newsletter["test_mode"] = strings.TrimSpace(value) == "1"
}

// mergeInto deep-merges src into dst; src wins on conflicts.
func mergeInto(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		dstMap, dstIsMap := dst[key].(map[string]any)
		if !dstIsMap {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		mergeInto(dstMap, srcMap)
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

// appNamesForPaths returns the config name and binary name from app identity.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "intake"
	binaryName = "intake"
	identity, err := appid.Get(context.Background())
	if err != nil || identity == nil {
		return configName, binaryName
	}
	if strings.TrimSpace(identity.ConfigName) != "" {
		configName = identity.ConfigName
	}
	if strings.TrimSpace(identity.BinaryName) != "" {
		binaryName = identity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultJournalPath returns the XDG-compliant path to the journal database.
func DefaultJournalPath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + "-journal.db"
	}
	return filepath.Join(dataDir, binaryName+"-journal.db")
}
