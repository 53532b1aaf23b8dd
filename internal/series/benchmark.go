package series

import (
	"sort"

	"llm-trading-dashboard/internal/types"
)

type timedClose struct {
	ts    int64
	close float64
}

// AlignBenchmark attaches a benchmark-equivalent equity to every point: what
// the first point's equity would be worth had it tracked the benchmark.
//
// With no benchmark series the line is a linear ramp from the first equity to
// fallbackChangePct percent above it. Otherwise each point takes the close
// with the same date string, or the nearest close in time. Points that cannot
// be matched keep a nil BenchmarkEquity. points must be in non-decreasing time
// order; the nearest-neighbour scan only moves forward.
func AlignBenchmark(points []types.PerformancePoint, bench []types.BenchmarkPoint, fallbackChangePct float64) []types.ChartPoint {
	out := make([]types.ChartPoint, len(points))
	for i, p := range points {
		out[i] = types.ChartPoint{PerformancePoint: p}
	}
	if len(points) == 0 {
		return out
	}

	baseEquity := points[0].Equity

	if len(bench) == 0 {
		denom := float64(max(1, len(points)-1))
		for i := range out {
			v := baseEquity * (1 + (fallbackChangePct/100)*(float64(i)/denom))
			out[i].BenchmarkEquity = &v
		}
		return out
	}

	timed := make([]timedClose, 0, len(bench))
	for _, b := range bench {
		if t, ok := types.ParseTimestamp(b.Date); ok {
			timed = append(timed, timedClose{ts: t.UnixMilli(), close: b.Close})
		}
	}
	if len(timed) == 0 {
		return out
	}
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].ts < timed[j].ts })

	// later duplicates of a date win
	byDate := make(map[string]float64, len(bench))
	for _, b := range bench {
		byDate[b.Date] = b.Close
	}

	baseClose, ok := byDate[points[0].Date]
	if !ok {
		baseClose = timed[0].close
	}
	if baseClose == 0 {
		baseClose = 1
	}

	j := 0
	for i, p := range points {
		c, found := byDate[p.Date]
		if !found {
			c, found = nearestClose(timed, &j, p.Date)
		}
		if !found {
			continue
		}
		v := baseEquity * (c / baseClose)
		out[i].BenchmarkEquity = &v
	}
	return out
}

// nearestClose advances *j to the last close at or before date and returns
// whichever of it and its successor is closer in time. Ties go to the earlier one.
func nearestClose(timed []timedClose, j *int, date string) (float64, bool) {
	t, ok := types.ParseTimestamp(date)
	if !ok {
		return 0, false
	}
	ts := t.UnixMilli()
	for *j+1 < len(timed) && timed[*j+1].ts <= ts {
		*j++
	}
	a := timed[*j]
	b := timed[min(*j+1, len(timed)-1)]
	if abs64(a.ts-ts) <= abs64(b.ts-ts) {
		return a.close, true
	}
	return b.close, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
