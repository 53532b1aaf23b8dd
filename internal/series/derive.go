package series

import "llm-trading-dashboard/internal/types"

const (
	// MaxShortPoints caps a short-range chart.
	MaxShortPoints = 400
	// MaxLongPoints caps a server-aggregated chart.
	MaxLongPoints = 200
)

// Derive produces the plotted series for r. Short ranges window the live
// samples; every other range uses the server series, truncated to its newest
// 200 points. Neither input is modified.
func Derive(r Range, samples []types.LiveSample, long []types.PerformancePoint) []types.PerformancePoint {
	if r.IsShort() {
		return FromSamples(windowSamples(samples, r.Window(), MaxShortPoints))
	}
	return TailPerformance(long, MaxLongPoints)
}

// FromSamples maps live samples to chart points dated by ISO-8601 timestamps.
func FromSamples(samples []types.LiveSample) []types.PerformancePoint {
	out := make([]types.PerformancePoint, len(samples))
	for i, s := range samples {
		pnl := s.PnL
		out[i] = types.PerformancePoint{Date: FormatMillis(s.Ts), Equity: s.Equity, PnL: &pnl}
	}
	return out
}

// TailPerformance copies the newest limit points.
func TailPerformance(points []types.PerformancePoint, limit int) []types.PerformancePoint {
	start := 0
	if limit > 0 && len(points) > limit {
		start = len(points) - limit
	}
	out := make([]types.PerformancePoint, len(points)-start)
	copy(out, points[start:])
	return out
}
