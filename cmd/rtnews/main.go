// Package main implements the entry point for the rtnews application, a
// backpressure-protected real-time news streaming server. It generates
// mock news items at a fixed rate, validates and buffers them, and fans
// them out to WebSocket subscribers while pausing ingestion under memory,
// latency, or queue pressure.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yanzhidev/windsurf-rtnews/backpressure"
	"github.com/yanzhidev/windsurf-rtnews/broadcast"
	"github.com/yanzhidev/windsurf-rtnews/config"
	"github.com/yanzhidev/windsurf-rtnews/gateway"
	"github.com/yanzhidev/windsurf-rtnews/generator"
	"github.com/yanzhidev/windsurf-rtnews/item"
	"github.com/yanzhidev/windsurf-rtnews/metric"
	"github.com/yanzhidev/windsurf-rtnews/monitor"
	"github.com/yanzhidev/windsurf-rtnews/pkg/ring"
	"github.com/yanzhidev/windsurf-rtnews/processor"
	"github.com/yanzhidev/windsurf-rtnews/stream"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rtnews"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, cliCfg)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("Starting rtnews (backpressure-protected news streaming)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"rate", cfg.Stream.Rate,
		"addr", cfg.Server.Addr())

	app, err := buildPipeline(cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	return runWithSignalHandling(app, cfg, logger)
}

// applyOverrides layers explicit CLI values on top of the loaded config.
func applyOverrides(cfg *config.Config, cli *CLIConfig) {
	if cli.Rate > 0 {
		cfg.Stream.Rate = cli.Rate
	}
	if cli.Duration > 0 {
		cfg.Stream.Duration = cli.Duration
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	if cli.ShutdownTimeout > 0 {
		cfg.Server.ShutdownTimeout = cli.ShutdownTimeout
	}
}

// pipeline bundles the running components for lifecycle management.
type pipeline struct {
	streamer *stream.Streamer
	batcher  *broadcast.Batcher // nil in direct-broadcast mode
	manager  *broadcast.Manager
	gateway  *gateway.Server
}

// buildPipeline wires generator, processor, history buffer, backpressure
// controller, broadcast, and gateway together.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	window := processor.NewWindow(100)
	mon := monitor.New(window, logger, monitor.WithMetrics(metrics))
	proc := processor.New(window,
		processor.WithMaxItemBytes(cfg.Stream.MaxItemBytes),
		processor.WithMetrics(metrics))
	history := ring.New[item.Item](cfg.Stream.BufferSize,
		ring.WithSizeGauge[item.Item](metrics.BufferSize))

	// Broadcast fan-out durations feed the same rolling window the
	// processor writes, so slow subscribers count as processing delay.
	mgr := broadcast.NewManager(logger,
		broadcast.WithSendTimeout(cfg.Broadcast.SendTimeout),
		broadcast.WithDurationSink(window.Record),
		broadcast.WithMetrics(metrics))

	var batcher *broadcast.Batcher
	if cfg.Broadcast.BatchEnabled {
		batcher = broadcast.NewBatcher(broadcast.BatcherConfig{
			BatchSize:     cfg.Broadcast.BatchSize,
			BatchInterval: cfg.Broadcast.BatchInterval,
			QueueCapacity: cfg.Backpressure.QueueCapacity,
		}, mgr, logger)
	}

	bpCfg := backpressure.Config{
		MaxMemoryMB:    cfg.Backpressure.MaxMemoryMB,
		DelayThreshold: cfg.Backpressure.MaxAvgLatency,
		QueueCapacity:  cfg.Backpressure.QueueCapacity,
		QueueHighWater: cfg.Backpressure.QueueHighWater,
		CheckInterval:  cfg.Backpressure.CheckInterval,
	}
	ctrlOpts := []backpressure.Option{backpressure.WithMetrics(metrics)}
	if batcher != nil {
		ctrlOpts = append(ctrlOpts, backpressure.WithQueueLen(batcher.Len))
	}
	ctrl := backpressure.New(bpCfg, mon, window, logger, ctrlOpts...)

	var streamOpts []stream.Option
	if batcher != nil {
		streamOpts = append(streamOpts, stream.WithBatcher(batcher))
	}
	streamer := stream.New(stream.Config{
		Rate:                cfg.Stream.Rate,
		Duration:            cfg.Stream.Duration,
		StatsInterval:       cfg.Stream.StatsInterval,
		MemoryCheckInterval: cfg.Stream.MemoryCheckInterval,
	}, generator.NewMock(), proc, history, ctrl, mon, mgr, logger, streamOpts...)

	gw := gateway.New(gateway.Config{
		Addr:            cfg.Server.Addr(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SendTimeout:     cfg.Broadcast.SendTimeout,
	}, streamer, mgr, registry, logger)

	return &pipeline{
		streamer: streamer,
		batcher:  batcher,
		manager:  mgr,
		gateway:  gw,
	}, nil
}

// runWithSignalHandling starts the pipeline and blocks until SIGINT or
// SIGTERM, then shuts everything down within the configured grace period.
func runWithSignalHandling(app *pipeline, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.batcher != nil {
		if err := app.batcher.Start(ctx); err != nil {
			return fmt.Errorf("start batcher: %w", err)
		}
	}
	if err := app.streamer.Start(ctx); err != nil {
		return fmt.Errorf("start streamer: %w", err)
	}
	if err := app.gateway.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	<-ctx.Done()
	stop()
	logger.Info("shutdown requested")

	grace := cfg.Server.ShutdownTimeout
	deadline := time.Now().Add(grace)

	if err := app.streamer.Stop(grace); err != nil {
		logger.Warn("streamer did not stop cleanly", "error", err)
	}
	if app.batcher != nil {
		if err := app.batcher.Stop(time.Until(deadline)); err != nil {
			logger.Warn("batcher did not drain", "error", err)
		}
	}
	if err := app.gateway.Stop(time.Until(deadline)); err != nil {
		logger.Warn("gateway did not stop cleanly", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
