package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/types"
)

// ErrEmptyBody is returned when an object endpoint answers with null or no body
var ErrEmptyBody = errors.New("empty response body")

// Backend talks to the trading bot's HTTP API
type Backend struct {
	client *Client
}

var _ interfaces.Backend = (*Backend)(nil)

func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := b.client.GET(ctx, path, query)
	if err != nil {
		return err
	}
	if err := resp.ParseJSON(out); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

// getObject decodes an object body, rejecting null so a bad response never
// replaces cached state with zero values.
func getObject[T any](ctx context.Context, b *Backend, path string) (T, error) {
	var zero T
	resp, err := b.client.GET(ctx, path, nil)
	if err != nil {
		return zero, err
	}
	var out *T
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := resp.ParseJSON(&out); err != nil {
			return zero, fmt.Errorf("GET %s: %w", path, err)
		}
	}
	if out == nil {
		return zero, fmt.Errorf("GET %s: %w", path, ErrEmptyBody)
	}
	return *out, nil
}

func (b *Backend) Status(ctx context.Context) (types.BotStatus, error) {
	return getObject[types.BotStatus](ctx, b, "/")
}

func (b *Backend) Portfolio(ctx context.Context) (types.Portfolio, error) {
	return getObject[types.Portfolio](ctx, b, "/portfolio")
}

func (b *Backend) Trades(ctx context.Context) ([]types.Transaction, error) {
	var trades []types.Transaction
	if err := b.getJSON(ctx, "/trades", nil, &trades); err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []types.Transaction{}
	}
	return trades, nil
}

func (b *Backend) Logs(ctx context.Context) ([]types.AgentLog, error) {
	var logs []types.AgentLog
	if err := b.getJSON(ctx, "/logs", nil, &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []types.AgentLog{}
	}
	return logs, nil
}

func (b *Backend) Performance(ctx context.Context, period string) ([]types.PerformancePoint, error) {
	var points []types.PerformancePoint
	if err := b.getJSON(ctx, "/performance", url.Values{"period": {period}}, &points); err != nil {
		return nil, err
	}
	if points == nil {
		points = []types.PerformancePoint{}
	}
	return points, nil
}

func (b *Backend) Benchmark(ctx context.Context, symbol, period string) ([]types.BenchmarkPoint, error) {
	var points []types.BenchmarkPoint
	query := url.Values{"symbol": {symbol}, "period": {period}}
	if err := b.getJSON(ctx, "/benchmark", query, &points); err != nil {
		return nil, err
	}
	if points == nil {
		points = []types.BenchmarkPoint{}
	}
	return points, nil
}

func (b *Backend) StartBot(ctx context.Context) error {
	_, err := b.client.POST(ctx, "/bot/start", nil)
	return err
}

func (b *Backend) StopBot(ctx context.Context) error {
	_, err := b.client.POST(ctx, "/bot/stop", nil)
	return err
}

func (b *Backend) RunAgent(ctx context.Context) error {
	_, err := b.client.POST(ctx, "/run-agent", nil)
	return err
}

func (b *Backend) ClosePositions(ctx context.Context, symbols []string) (types.CloseResponse, error) {
	var out types.CloseResponse
	resp, err := b.client.POST(ctx, "/positions/close", map[string][]string{"symbols": symbols})
	if err != nil {
		return out, err
	}
	if err := resp.ParseJSON(&out); err != nil {
		return out, fmt.Errorf("POST /positions/close: %w", err)
	}
	return out, nil
}
