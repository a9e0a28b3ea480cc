package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	Rate            int
	Duration        time.Duration
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("RTNEWS_CONFIG", ""),
		"Path to JSON configuration file, empty for defaults (env: RTNEWS_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("RTNEWS_CONFIG", ""),
		"Path to JSON configuration file, empty for defaults (env: RTNEWS_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("RTNEWS_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: RTNEWS_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("RTNEWS_LOG_FORMAT", ""),
		"Log format: json, text (env: RTNEWS_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("RTNEWS_DEBUG", false),
		"Enable debug mode (env: RTNEWS_DEBUG)")

	flag.IntVar(&cfg.Rate, "rate",
		getEnvInt("RTNEWS_RATE", 0),
		"Items generated per second, 0 uses config value (env: RTNEWS_RATE)")

	flag.DurationVar(&cfg.Duration, "run-for",
		getEnvDuration("RTNEWS_RUN_FOR", 0),
		"Stop streaming after this duration, 0 runs until signalled (env: RTNEWS_RUN_FOR)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("RTNEWS_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: RTNEWS_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	// Config file is optional; validate only when given
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"", "debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"", "json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Rate < 0 {
		return fmt.Errorf("invalid rate: %d", cfg.Rate)
	}

	if cfg.Duration < 0 {
		return fmt.Errorf("invalid run-for duration: %s", cfg.Duration)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Backpressure-Protected News Streaming

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with defaults (10 items/s on :8000)
  %s

  # Run with custom config and debug logging
  %s --config=/etc/rtnews/config.json --log-level=debug --log-format=text

  # Run a 5 minute burst at 100 items/s
  %s --rate=100 --run-for=5m

  # Validate configuration only
  %s --config=/etc/rtnews/config.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
