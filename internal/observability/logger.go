// Package observability owns the process-wide loggers and the telemetry
// system. Both are nil until initialized; callers check before use.
package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used by CLI commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger is used by the HTTP service (STRUCTURED profile).
	ServerLogger *logging.Logger
)

// ServerLoggerOptions describe the structured service logger.
type ServerLoggerOptions struct {
	Service   string
	Level     string
	Namespace string
	// Environment is reported on every line. Empty means "production".
	Environment string
}

var levelNames = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger installs the CLI logger.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger installs the service logger at the given level. An
// optional namespace is attached as a static field.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	opts := ServerLoggerOptions{Service: serviceName, Level: logLevel}
	if len(namespace) > 0 {
		opts.Namespace = namespace[0]
	}
	InstallServerLogger(opts)
}

// InstallServerLogger builds the service logger from opts and exits the
// process when the configuration is rejected.
func InstallServerLogger(opts ServerLoggerOptions) {
	logger, err := NewServerLogger(opts)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServerLogger builds a JSON logger on stderr with correlation middleware.
// Subscriber addresses must never be passed to it as fields.
func NewServerLogger(opts ServerLoggerOptions) (*logging.Logger, error) {
	staticFields := map[string]any{}
	if ns := strings.TrimSpace(opts.Namespace); ns != "" {
		staticFields["namespace"] = ns
	}

	environment := strings.TrimSpace(opts.Environment)
	if environment == "" {
		environment = "production"
	}

	return logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: ParseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  environment,
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
}

// ParseLogLevel maps a config level onto a gofulmen severity name.
// Unknown values fall back to INFO.
func ParseLogLevel(level string) string {
	if name, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return name
	}
	return "INFO"
}

// exitWithCodeStderr is used before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}
