package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearProviderEnv unsets every mapped variable so the host environment
// cannot leak into assertions. Values are restored on cleanup.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"NEWSLETTER_PROVIDER", "NEWSLETTER_RATE_LIMIT_PER_IP", "NEWSLETTER_RATE_LIMIT_WINDOW_SEC", TestModeEnv,
		"GHOST_API_URL", "GHOST_CONTENT_API_KEY", "GHOST_ADMIN_API_KEY", "GHOST_NEWSLETTER_ID",
		"CONVERTKIT_API_KEY", "CONVERTKIT_FORM_ID", "CONVERTKIT_API_BASE",
		"INTAKE_PORT", "INTAKE_LOG_LEVEL", "INTAKE_JOURNAL_ENABLED", "INTAKE_JOURNAL_PATH", "INTAKE_JOURNAL_URL",
		"INTAKE_READ_TIMEOUT", "INTAKE_PROVIDER_TIMEOUT",
	} {
		previous, had := os.LookupEnv(name)
		require.NoError(t, os.Unsetenv(name))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(name, previous)
			} else {
				_ = os.Unsetenv(name)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		clearProviderEnv(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, 10, cfg.Newsletter.RateLimitPerIP)
		assert.Equal(t, 60, cfg.Newsletter.RateLimitWindowSec)
		assert.Equal(t, 5*time.Second, cfg.Newsletter.ProviderTimeout)
		assert.False(t, cfg.Newsletter.TestMode)
		assert.True(t, cfg.Newsletter.Breaker.Enabled)
		assert.Equal(t, 5, cfg.Newsletter.Breaker.MaxFailures)
		assert.Equal(t, 30*time.Second, cfg.Newsletter.Breaker.OpenTimeout)

		assert.False(t, cfg.Journal.Enabled)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		clearProviderEnv(t)

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"newsletter": map[string]any{
				"test_mode": true,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.True(t, cfg.Newsletter.TestMode)
		// siblings of overridden keys keep their defaults
		assert.Equal(t, 10, cfg.Newsletter.RateLimitPerIP)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	})

	t.Run("ProviderEnv", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("NEWSLETTER_PROVIDER", "ConvertKit")
		t.Setenv("NEWSLETTER_RATE_LIMIT_PER_IP", "3")
		t.Setenv("NEWSLETTER_RATE_LIMIT_WINDOW_SEC", "15")
		t.Setenv("CONVERTKIT_API_KEY", "ck-key")
		t.Setenv("CONVERTKIT_FORM_ID", "1234")
		t.Setenv("GHOST_API_URL", "https://blog.example.com")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "ConvertKit", cfg.Newsletter.Provider)
		assert.Equal(t, 3, cfg.Newsletter.RateLimitPerIP)
		assert.Equal(t, 15, cfg.Newsletter.RateLimitWindowSec)
		assert.Equal(t, "ck-key", cfg.ConvertKit.APIKey)
		assert.Equal(t, "1234", cfg.ConvertKit.FormID)
		assert.Equal(t, "https://blog.example.com", cfg.Ghost.APIURL)
	})

	t.Run("TestModeOnlyForLiteralOne", func(t *testing.T) {
		clearProviderEnv(t)

		t.Setenv(TestModeEnv, "1")
		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Newsletter.TestMode)

		t.Setenv(TestModeEnv, "true")
		cfg, err = Load(ctx)
		require.NoError(t, err)
		assert.False(t, cfg.Newsletter.TestMode)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("INTAKE_PORT", "4000")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)

		cfg, err = Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("FileLayerBelowEnv", func(t *testing.T) {
		clearProviderEnv(t)
		file := map[string]any{
			"server":     map[string]any{"port": 7000, "host": "0.0.0.0"},
			"convertkit": map[string]any{"form_id": "from-file"},
		}
		t.Setenv("INTAKE_PORT", "7100")

		cfg, err := LoadLayered(ctx, file)
		require.NoError(t, err)
		assert.Equal(t, 7100, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, "from-file", cfg.ConvertKit.FormID)
	})

	t.Run("JournalDefaultPath", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("XDG_DATA_HOME", t.TempDir())
		t.Setenv("INTAKE_JOURNAL_ENABLED", "true")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Journal.Enabled)
		expected := filepath.Join(gfconfig.GetAppDataDir("intake"), "intake-journal.db")
		assert.Equal(t, expected, cfg.Journal.Path)
	})

	t.Run("RejectsInvalidLimits", func(t *testing.T) {
		clearProviderEnv(t)

		_, err := Load(ctx, map[string]any{"newsletter": map[string]any{"rate_limit_per_ip": 0}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate_limit_per_ip")
	})
}

func TestGetConfig(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs("INTAKE_")
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
	}

	for _, name := range []string{
		"INTAKE_HOST", "INTAKE_PORT", "INTAKE_LOG_LEVEL",
		"NEWSLETTER_PROVIDER", "NEWSLETTER_RATE_LIMIT_PER_IP", "NEWSLETTER_RATE_LIMIT_WINDOW_SEC",
		"GHOST_API_URL", "GHOST_CONTENT_API_KEY", "GHOST_ADMIN_API_KEY",
		"CONVERTKIT_API_KEY", "CONVERTKIT_FORM_ID", "CONVERTKIT_API_BASE",
	} {
		assert.True(t, names[name], "%s must be mapped", name)
	}
}

func TestDurationParsing(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("INTAKE_READ_TIMEOUT", "45s")
	t.Setenv("INTAKE_PROVIDER_TIMEOUT", "2s")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Newsletter.ProviderTimeout)
}

func TestValidate(t *testing.T) {
	cfg, err := decode(Defaults())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.Newsletter.ProviderTimeout = 0
	cfg.Newsletter.Breaker.OpenTimeout = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider_timeout")
	assert.Contains(t, err.Error(), "open_timeout")

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestValidateLayers(t *testing.T) {
	require.NoError(t, validateLayers(Defaults()))

	cases := []struct {
		name     string
		override map[string]any
		pointer  string
	}{
		{"rate limit below one", map[string]any{"newsletter": map[string]any{"rate_limit_per_ip": 0}}, "rate_limit_per_ip"},
		{"window below one", map[string]any{"newsletter": map[string]any{"rate_limit_window_sec": -5}}, "rate_limit_window_sec"},
		{"port out of range", map[string]any{"server": map[string]any{"port": 70000}}, "port"},
		{"metrics port out of range", map[string]any{"metrics": map[string]any{"port": -1}}, "port"},
		{"breaker failures below one", map[string]any{"newsletter": map[string]any{"breaker": map[string]any{"max_failures": 0}}}, "max_failures"},
		{"test mode not boolean", map[string]any{"newsletter": map[string]any{"test_mode": "yes"}}, "test_mode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := Defaults()
			mergeInto(merged, tc.override)
			err := validateLayers(merged)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
			assert.Contains(t, err.Error(), tc.pointer)
		})
	}
}

func TestLoadRejectsSchemaViolationsFromEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("NEWSLETTER_RATE_LIMIT_WINDOW_SEC", "0")

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_window_sec")
}
