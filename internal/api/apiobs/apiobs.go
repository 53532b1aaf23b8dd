package apiobs

import (
	"context"
	"fmt"

	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/trace"
	"llm-trading-dashboard/internal/types"
)

// observableBackend adds a span and a log line to every backend call.
// Failed calls mark their span as errored.
type observableBackend struct {
	backend interfaces.Backend
}

// Compile-time interface check
var _ interfaces.Backend = (*observableBackend)(nil)

// Wrap wraps a backend with observability middleware
func Wrap(backend interfaces.Backend) interfaces.Backend {
	return &observableBackend{backend: backend}
}

func (ob *observableBackend) Status(ctx context.Context) (st types.BotStatus, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.Status")
	defer func() { trace.End(span, err) }()

	st, err = ob.backend.Status(ctx)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Status fetch failed", "error", err)
		return st, err
	}

	logger.DebugSkip(ctx, 1, "Status fetched", "bot_active", st.BotActive, "market_status", st.MarketStatus)
	return st, nil
}

func (ob *observableBackend) Portfolio(ctx context.Context) (p types.Portfolio, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.Portfolio")
	defer func() { trace.End(span, err) }()

	p, err = ob.backend.Portfolio(ctx)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Portfolio fetch failed", "error", err)
		return p, err
	}

	logger.DebugSkip(ctx, 1, "Portfolio fetched", "equity", p.Equity, "positions", len(p.Positions))
	return p, nil
}

func (ob *observableBackend) Trades(ctx context.Context) (trades []types.Transaction, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.Trades")
	defer func() { trace.End(span, err) }()

	trades, err = ob.backend.Trades(ctx)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Trades fetch failed", "error", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Trades fetched", "count", len(trades))
	return trades, nil
}

func (ob *observableBackend) Logs(ctx context.Context) (logs []types.AgentLog, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.Logs")
	defer func() { trace.End(span, err) }()

	logs, err = ob.backend.Logs(ctx)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Logs fetch failed", "error", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Logs fetched", "count", len(logs))
	return logs, nil
}

func (ob *observableBackend) Performance(ctx context.Context, period string) (points []types.PerformancePoint, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.Performance")
	defer func() { trace.End(span, err) }()

	points, err = ob.backend.Performance(ctx, period)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Performance fetch failed", "period", period, "error", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Performance fetched", "period", period, "count", len(points))
	return points, nil
}

func (ob *observableBackend) Benchmark(ctx context.Context, symbol, period string) (points []types.BenchmarkPoint, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.Benchmark")
	defer func() { trace.End(span, err) }()

	points, err = ob.backend.Benchmark(ctx, symbol, period)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Benchmark fetch failed", "symbol", symbol, "period", period, "error", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Benchmark fetched", "symbol", symbol, "period", period, "count", len(points))
	return points, nil
}

func (ob *observableBackend) StartBot(ctx context.Context) (err error) {
	ctx, span := trace.StartSpan(ctx, "backend.StartBot")
	defer func() { trace.End(span, err) }()

	logger.InfoSkip(ctx, 1, "Starting bot")
	if err = ob.backend.StartBot(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start bot", err)
		return fmt.Errorf("start bot: %w", err)
	}
	return nil
}

func (ob *observableBackend) StopBot(ctx context.Context) (err error) {
	ctx, span := trace.StartSpan(ctx, "backend.StopBot")
	defer func() { trace.End(span, err) }()

	logger.InfoSkip(ctx, 1, "Stopping bot")
	if err = ob.backend.StopBot(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to stop bot", err)
		return fmt.Errorf("stop bot: %w", err)
	}
	return nil
}

func (ob *observableBackend) RunAgent(ctx context.Context) (err error) {
	ctx, span := trace.StartSpan(ctx, "backend.RunAgent")
	defer func() { trace.End(span, err) }()

	logger.InfoSkip(ctx, 1, "Triggering agent run")
	if err = ob.backend.RunAgent(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to trigger agent run", err)
		return fmt.Errorf("run agent: %w", err)
	}
	return nil
}

func (ob *observableBackend) ClosePositions(ctx context.Context, symbols []string) (resp types.CloseResponse, err error) {
	ctx, span := trace.StartSpan(ctx, "backend.ClosePositions")
	defer func() { trace.End(span, err) }()

	logger.InfoSkip(ctx, 1, "Closing positions", "symbols", symbols, "count", len(symbols))

	resp, err = ob.backend.ClosePositions(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close positions", err, "symbols", symbols)
		return resp, fmt.Errorf("close positions: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Close positions submitted", "results", len(resp.Results))
	return resp, nil
}
