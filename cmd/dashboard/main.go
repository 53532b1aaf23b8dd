package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-trading-dashboard/internal/feed"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/series"
	"llm-trading-dashboard/internal/state"
	"llm-trading-dashboard/internal/statusapi"
	"llm-trading-dashboard/internal/trace"
	"llm-trading-dashboard/internal/tradelog"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	rangeFlag := flag.String("range", "", "chart range to report (5S, 15S, 30S, 1m, 5m, 1D, 1W, 1M, 3M, 1Y, ALL)")
	listen := flag.String("listen", "", "address for the read-only status API (overrides status_listen)")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}
	if *rangeFlag != "" {
		if _, err := series.ParseRange(*rangeFlag); err != nil {
			logger.ErrorWithErr(ctx, "Invalid -range", err)
			os.Exit(2)
		}
		cfg.DefaultRange = *rangeFlag
	}
	if *listen != "" {
		cfg.StatusListen = *listen
	}

	compressOldJournal(ctx, tradelog.FromEnv())

	session := feed.NewSession(initializeBackend(cfg), initializeDialer(cfg), sessionOptions(cfg))
	if err := session.Start(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to start session", err)
		os.Exit(1)
	}

	statusDone := startStatusServer(ctx, cfg.StatusListen, session, staleAfter(cfg.ReportInterval()))

	run(ctx, session, cfg.ReportInterval())
	<-statusDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Stop(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Session did not stop cleanly", "error", err)
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shutdown tracer: %v\n", err)
	}
}

func staleAfter(reportInterval time.Duration) time.Duration {
	return 3 * reportInterval
}

// startStatusServer serves the status API until ctx is cancelled. The
// returned channel is closed once the server has shut down.
func startStatusServer(ctx context.Context, addr string, session *feed.Session, staleAge time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if addr == "" {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if err := statusapi.Serve(ctx, addr, statusapi.NewHandler(session, staleAge)); err != nil {
			logger.ErrorWithErr(ctx, "Status server failed", err, "addr", addr)
		}
	}()
	return done
}

// run logs a status line every interval and whenever the bot flag flips,
// until ctx is cancelled.
func run(ctx context.Context, session *feed.Session, interval time.Duration) {
	changes, unsubscribe := session.Store().Subscribe()
	defer unsubscribe()

	tick := time.NewTicker(interval)
	defer tick.Stop()

	var lastActive *bool
	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "Shutting down...", "session_id", session.ID())
			return

		case _, ok := <-changes:
			if !ok {
				return
			}
			snap := session.Store().Snapshot()
			if lastActive == nil || *lastActive != snap.BotActive {
				active := snap.BotActive
				lastActive = &active
				logger.Info(ctx, "Bot state", "bot_active", active)
			}

		case now := <-tick.C:
			report(ctx, session, now, interval)
		}
	}
}

func report(ctx context.Context, session *feed.Session, now time.Time, interval time.Duration) {
	snap := session.Store().Snapshot()
	chart := session.Chart()

	fields := []any{
		"conn", session.ConnState().String(),
		"connected", snap.Connected,
		"stale", snap.Stale(now, staleAfter(interval)),
		"bot_active", snap.BotActive,
		"range", session.Range().String(),
		"chart_points", len(chart),
		"samples", session.Buffer().Len(),
		"trades", len(snap.Trades),
		"logs", len(snap.Logs),
		"benchmark_change", snap.BenchmarkChange,
	}
	if snap.MarketStatus != nil {
		fields = append(fields, "market", snap.MarketStatus.Status)
	}
	if p := snap.Portfolio; p != nil {
		fields = append(fields,
			"equity", p.Equity,
			"baseline", p.Baseline(),
			"unrealized_pl", p.UnrealizedPL(),
			"positions", len(p.Positions))
	}
	if n := len(chart); n > 0 {
		last := chart[n-1]
		fields = append(fields, "last_point", last.Date)
		if last.BenchmarkEquity != nil {
			fields = append(fields, "benchmark_equity", *last.BenchmarkEquity)
		}
	}
	if feedEntries := state.ActivityFeed(snap.Trades, snap.Logs); len(feedEntries) > 0 {
		fields = append(fields, "latest_activity", feedEntries[0].Content)
	}

	logger.Info(ctx, "Dashboard status", fields...)
}
