package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths []string
	LogLevel    string
	LogFormat   string
	Debug       bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

// parseFlags reads args into a CLIConfig. Flags fall back to FLOWDIFF_*
// environment variables; explicit log flags win over the config file.
func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var configs string
	fs.StringVar(&configs, "config",
		getEnv("FLOWDIFF_CONFIG", ""),
		"Comma-separated config layers, later files override earlier (env: FLOWDIFF_CONFIG)")
	fs.StringVar(&configs, "c",
		getEnv("FLOWDIFF_CONFIG", ""),
		"Shorthand for --config")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("FLOWDIFF_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: FLOWDIFF_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FLOWDIFF_LOG_FORMAT", ""),
		"Log format: json, text (env: FLOWDIFF_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("FLOWDIFF_DEBUG", false),
		"Enable debug logging (env: FLOWDIFF_DEBUG)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, path := range strings.Split(configs, ",") {
		if path = strings.TrimSpace(path); path != "" {
			cfg.ConfigPaths = append(cfg.ConfigPaths, path)
		}
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}
	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - flow diff and validation service

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a base config and a production overlay
  %s --config=configs/base.yaml,configs/production.yaml

  # Run against NATS with text logs
  FLOWDIFF_STORE_BACKEND=nats FLOWDIFF_STORE_NATS_URL=nats://nats:4222 %s --log-format=text

  # Validate configuration only
  %s --config=configs/base.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
