package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/config"
	"github.com/artofficial/intake/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective configuration. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		log.Info("=== Intake Environment Information ===")
		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Server:")
		log.Info(fmt.Sprintf("  Listen:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info("")

		nc := cfg.Newsletter
		log.Info("Newsletter:")
		log.Info("  Provider:       " + orUnset(nc.Provider))
		log.Info(fmt.Sprintf("  Rate Limit:     %d per %ds", nc.RateLimitPerIP, nc.RateLimitWindowSec))
		log.Info(fmt.Sprintf("  Test Mode:      %t", nc.TestMode), zap.Bool("test_mode", nc.TestMode))
		log.Info("  Timeout:        " + nc.ProviderTimeout.String())
		log.Info(fmt.Sprintf("  Breaker:        %t (%d failures, %s open)", nc.Breaker.Enabled, nc.Breaker.MaxFailures, nc.Breaker.OpenTimeout))
		log.Info("")

		log.Info("Ghost:")
		log.Info("  API URL:        " + orUnset(cfg.Ghost.APIURL))
		log.Info("  Content Key:    " + setOrNot(cfg.Ghost.ContentAPIKey))
		log.Info("  Admin Key:      " + setOrNot(cfg.Ghost.AdminAPIKey))
		log.Info("ConvertKit:")
		log.Info("  API Key:        " + setOrNot(cfg.ConvertKit.APIKey))
		log.Info("  Form ID:        " + orUnset(cfg.ConvertKit.FormID))
		log.Info("")

		log.Info("Journal:")
		log.Info(fmt.Sprintf("  Enabled:        %t", cfg.Journal.Enabled))
		if strings.TrimSpace(cfg.Journal.URL) != "" {
			log.Info("  URL:            (set)")
		} else if cfg.Journal.Enabled {
			log.Info("  Path:           " + cfg.Journal.Path)
		}
		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}

func setOrNot(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return "(not set)"
	}
	return "(set)"
}
