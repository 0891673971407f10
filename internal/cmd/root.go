package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/appid"
	"github.com/artofficial/intake/internal/config"
	"github.com/artofficial/intake/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	appIdentity *appid.Identity

	// fileSettings holds values read from the config file, if any.
	fileSettings map[string]any

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the application identity.
func GetAppIdentity() *appid.Identity {
	if appIdentity == nil {
		appIdentity, _ = appid.Get(context.Background())
	}
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Newsletter subscription intake service",
	Long: `intake accepts newsletter sign-ups over HTTP, validates them, filters bots
and forwards them to the configured email backend (Ghost or ConvertKit).

Use the subcommands to run the server or inspect configuration offline.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep config loading from emitting metrics before serve sets up telemetry.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	identity := GetAppIdentity()
	rootCmd.Use = identity.BinaryName

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load provider credentials from a dotenv file before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig loads the dotenv file and the optional config file.
func initConfig() {
	identity := GetAppIdentity()
	observability.InitCLILogger(identity.BinaryName, verbose)

	if err := loadEnvFile(envFile); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load env file", err)
	}

	settings, err := readConfigFile(cfgFile, identity)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
	}
	fileSettings = settings
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	observability.CLILogger.Debug("Loaded env file", zap.String("path", path))
	return nil
}

// readConfigFile returns the settings from an explicit config file or the
// XDG default. A missing default file is not an error.
func readConfigFile(path string, identity *appid.Identity) (map[string]any, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if strings.TrimSpace(path) == "" && errors.As(err, &notFound) {
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
			return nil, nil
		}
		return nil, err
	}

	observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	return v.AllSettings(), nil
}

// loadConfig builds the effective configuration for a command.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadLayered(ctx, fileSettings, overrides...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
