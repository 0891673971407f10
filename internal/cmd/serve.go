package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/config"
	"github.com/artofficial/intake/internal/journal"
	"github.com/artofficial/intake/internal/metrics"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/observability"
	"github.com/artofficial/intake/internal/provider"
	"github.com/artofficial/intake/internal/server"
	"github.com/artofficial/intake/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
	testMode   bool
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Routes:
  POST /newsletter, POST /api/newsletter   submit a sign-up
  GET  /health[/live|/ready|/startup]      health probes
  GET  /version, GET /metrics

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context(), serveOverrides(cmd))
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", false, "answer deterministically without calling any backend")
}

// serveOverrides returns only the flags the user actually set, so unset
// flags do not mask environment or file values.
func serveOverrides(cmd *cobra.Command) map[string]any {
	serverLayer := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverLayer["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		serverLayer["port"] = serverPort
	}

	overrides := map[string]any{}
	if len(serverLayer) > 0 {
		overrides["server"] = serverLayer
	}
	if cmd.Flags().Changed("test-mode") {
		overrides["newsletter"] = map[string]any{"test_mode": testMode}
	}
	if verbose {
		overrides["logging"] = map[string]any{"level": "debug"}
	}
	return overrides
}

func runServer(ctx context.Context, cfg *config.Config) error {
	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace

	environment := "production"
	if cfg.Newsletter.TestMode {
		environment = "test"
	}
	observability.InstallServerLogger(observability.ServerLoggerOptions{
		Service:     identity.BinaryName,
		Level:       cfg.Logging.Level,
		Namespace:   namespace,
		Environment: environment,
	})
	logger := observability.ServerLogger

	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.SetTestMode(cfg.Newsletter.TestMode)

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return err
		}
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}

	registry := provider.NewRegistry(cfg, provider.WithHTTPClient(&http.Client{
		Timeout: cfg.Newsletter.ProviderTimeout,
	}))
	svc, err := newsletter.NewService(newsletter.Options{
		Config:      cfg,
		Subscribers: registry,
	})
	if err != nil {
		return err
	}

	deps := server.Deps{
		Newsletter:  svc,
		Health:      hm,
		MetricsPort: cfg.Metrics.Port,
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(ctx, cfg.Journal)
		if err != nil {
			logger.Error("Failed to open outcome journal", zap.Error(err))
			return err
		}
		deps.Journal = store
		hm.RegisterChecker("journal", store)
	}

	backend := newsletter.Resolve(newsletter.DetectCredentials(cfg))
	logger.Info("Initializing intake server",
		zap.String("service", identity.BinaryName),
		zap.String("version", versionInfo.Version),
		zap.String("resolved_provider", string(backend)),
		zap.Bool("test_mode", cfg.Newsletter.TestMode),
		zap.Int("rate_limit_per_ip", cfg.Newsletter.RateLimitPerIP),
		zap.Int("rate_limit_window_sec", cfg.Newsletter.RateLimitWindowSec),
		zap.Bool("journal", cfg.Journal.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled))
	if cfg.Newsletter.TestMode {
		logger.Warn("Test mode is enabled: submissions are answered locally and never reach a provider")
	} else if backend == newsletter.BackendNone {
		logger.Warn("No newsletter provider configured: submissions will receive 503")
	}

	handlers.SetAppIdentity(identity)
	srv := server.New(cfg.Server, deps)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: server, journal, exporter, then logger flush.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	if cfg.Metrics.Enabled {
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Failed to stop metrics exporter", zap.Error(err))
			}
			return nil
		})
	}
	if store != nil {
		signals.OnShutdown(func(ctx context.Context) error {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close outcome journal", zap.Error(err))
			}
			return nil
		})
	}
	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	errChan := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	return <-errChan
}
