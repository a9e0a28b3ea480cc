// Package config defines the application configuration, loaded from an
// optional JSON file and overridable through RTNEWS_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the complete application configuration.
type Config struct {
	Stream       StreamConfig       `json:"stream"`
	Backpressure BackpressureConfig `json:"backpressure"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	Server       ServerConfig       `json:"server"`
	Logging      LoggingConfig      `json:"logging"`
}

// StreamConfig controls the ingestion loop.
type StreamConfig struct {
	Rate                int           `json:"rate" env:"STREAM_RATE"`                   // items generated per second
	Duration            time.Duration `json:"duration" env:"STREAM_DURATION"`           // 0 means run until stopped
	BufferSize          int           `json:"buffer_size" env:"BUFFER_SIZE"`            // recent-history ring capacity
	MaxItemBytes        int           `json:"max_item_bytes" env:"MAX_ITEM_BYTES"`      // serialized item size ceiling
	StatsInterval       int           `json:"stats_interval" env:"STATS_INTERVAL"`      // accepted items between stats broadcasts
	MemoryCheckInterval int           `json:"memory_check_interval" env:"MEMORY_CHECK_INTERVAL"` // ticks between memory probes
}

// BackpressureConfig controls when the pipeline pauses.
type BackpressureConfig struct {
	MaxMemoryMB    float64       `json:"max_memory_mb" env:"MAX_MEMORY_MB"`
	MaxAvgLatency  time.Duration `json:"max_avg_latency" env:"MAX_AVG_LATENCY"`
	QueueCapacity  int           `json:"queue_capacity" env:"QUEUE_CAPACITY"`
	QueueHighWater float64       `json:"queue_high_water" env:"QUEUE_HIGH_WATER"`
	CheckInterval  time.Duration `json:"check_interval" env:"CHECK_INTERVAL"`
}

// BroadcastConfig controls subscriber delivery.
type BroadcastConfig struct {
	SendTimeout   time.Duration `json:"send_timeout" env:"SEND_TIMEOUT"`
	BatchEnabled  bool          `json:"batch_enabled" env:"BATCH_ENABLED"`
	BatchSize     int           `json:"batch_size" env:"BATCH_SIZE"`
	BatchInterval time.Duration `json:"batch_interval" env:"BATCH_INTERVAL"`
}

// ServerConfig controls the HTTP/WebSocket gateway.
type ServerConfig struct {
	Host            string        `json:"host" env:"HOST"`
	Port            int           `json:"port" env:"PORT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT"` // text or json
}

// Default returns a configuration populated with production defaults.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			Rate:                10,
			Duration:            0,
			BufferSize:          1000,
			MaxItemBytes:        100 * 1024,
			StatsInterval:       100,
			MemoryCheckInterval: 5,
		},
		Backpressure: BackpressureConfig{
			MaxMemoryMB:    200,
			MaxAvgLatency:  100 * time.Millisecond,
			QueueCapacity:  10000,
			QueueHighWater: 0.8,
			CheckInterval:  100 * time.Millisecond,
		},
		Broadcast: BroadcastConfig{
			SendTimeout:   5 * time.Second,
			BatchEnabled:  true,
			BatchSize:     5,
			BatchInterval: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration in three layers: defaults, an optional
// JSON file, then RTNEWS_* environment variables. An empty path skips
// the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "RTNEWS_"}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Stream.Rate <= 0 {
		return errors.New("stream.rate must be positive")
	}
	if c.Stream.Duration < 0 {
		return errors.New("stream.duration cannot be negative")
	}
	if c.Stream.BufferSize <= 0 {
		return errors.New("stream.buffer_size must be positive")
	}
	if c.Stream.MaxItemBytes <= 0 {
		return errors.New("stream.max_item_bytes must be positive")
	}
	if c.Stream.StatsInterval <= 0 {
		return errors.New("stream.stats_interval must be positive")
	}
	if c.Stream.MemoryCheckInterval <= 0 {
		return errors.New("stream.memory_check_interval must be positive")
	}
	if c.Backpressure.MaxMemoryMB <= 0 {
		return errors.New("backpressure.max_memory_mb must be positive")
	}
	if c.Backpressure.MaxAvgLatency <= 0 {
		return errors.New("backpressure.max_avg_latency must be positive")
	}
	if c.Backpressure.QueueCapacity <= 0 {
		return errors.New("backpressure.queue_capacity must be positive")
	}
	if c.Backpressure.QueueHighWater <= 0 || c.Backpressure.QueueHighWater > 1 {
		return errors.New("backpressure.queue_high_water must be in (0, 1]")
	}
	if c.Backpressure.CheckInterval <= 0 {
		return errors.New("backpressure.check_interval must be positive")
	}
	if c.Broadcast.SendTimeout <= 0 {
		return errors.New("broadcast.send_timeout must be positive")
	}
	if c.Broadcast.BatchEnabled {
		if c.Broadcast.BatchSize <= 0 {
			return errors.New("broadcast.batch_size must be positive")
		}
		if c.Broadcast.BatchInterval <= 0 {
			return errors.New("broadcast.batch_interval must be positive")
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be in (0, 65535]")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// Addr returns the listen address for the gateway server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ToJSON renders the config as indented JSON for debugging.
func (c *Config) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
