package interfaces

import (
	"context"

	"llm-trading-dashboard/internal/types"
)

// SnapshotSource is the read side of the bot backend used for full-state pulls.
type SnapshotSource interface {
	Status(ctx context.Context) (types.BotStatus, error)
	Portfolio(ctx context.Context) (types.Portfolio, error)
	Trades(ctx context.Context) ([]types.Transaction, error)
	Logs(ctx context.Context) ([]types.AgentLog, error)
}

// SeriesSource serves the long-range chart data.
type SeriesSource interface {
	Performance(ctx context.Context, period string) ([]types.PerformancePoint, error)
	Benchmark(ctx context.Context, symbol, period string) ([]types.BenchmarkPoint, error)
}

// Commander issues operator commands. Commands never touch local state.
type Commander interface {
	StartBot(ctx context.Context) error
	StopBot(ctx context.Context) error
	RunAgent(ctx context.Context) error
	ClosePositions(ctx context.Context, symbols []string) (types.CloseResponse, error)
}

type Backend interface {
	SnapshotSource
	SeriesSource
	Commander
}
