package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"llm-trading-dashboard/internal/api"
	"llm-trading-dashboard/internal/api/apiobs"
	"llm-trading-dashboard/internal/feed"
	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/store"
	"llm-trading-dashboard/internal/trace"
	"llm-trading-dashboard/internal/tradelog"
)

// initializeSystem loads .env and sets up logging and tracing
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldJournal gzips command journal days past TRADER_LOG_RETENTION_DAYS
func compressOldJournal(ctx context.Context, journal *tradelog.Journal) {
	n, err := journal.CompressOlder(tradelog.RetentionDaysFromEnv())
	if err != nil {
		logger.Warn(ctx, "Failed to compress old command journal", "dir", journal.Dir(), "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old command journal files", "count", n, "dir", journal.Dir())
	}
}

// initializeBackend builds the HTTP backend client wrapped with observability
func initializeBackend(cfg *store.Config) interfaces.Backend {
	opts := []api.ClientOption{
		api.WithBaseURL(cfg.Backend.BaseURL),
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithLogging(cfg.Backend.LogRequests),
	}
	for k, v := range cfg.Backend.Headers {
		opts = append(opts, api.WithHeader(k, v))
	}
	return apiobs.Wrap(api.NewBackend(api.NewClient(opts...)))
}

// initializeDialer builds the stream dialer with the same backend headers
func initializeDialer(cfg *store.Config) *feed.Dialer {
	opts := []feed.DialerOption{feed.WithHandshakeTimeout(cfg.HandshakeTimeout())}
	for k, v := range cfg.Backend.Headers {
		opts = append(opts, feed.WithDialHeader(k, v))
	}
	return feed.NewDialer(opts...)
}

func sessionOptions(cfg *store.Config) feed.Options {
	return feed.Options{
		StreamURL:           cfg.Backend.StreamURL,
		BenchmarkSymbol:     cfg.BenchmarkSymbol,
		Range:               cfg.Range(),
		SnapshotInterval:    cfg.SnapshotInterval(),
		ReconnectDelay:      cfg.ReconnectDelay(),
		SampleInterval:      cfg.SampleInterval(),
		PerformanceInterval: cfg.PerformanceInterval(),
	}
}
