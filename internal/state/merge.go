package state

import (
	"fmt"
	"math"
	"sort"

	"llm-trading-dashboard/internal/types"
)

const (
	// MaxTrades caps the cached trade history.
	MaxTrades = 200
	// MaxLogs caps the cached agent logs.
	MaxLogs = 200
)

type tradeKey struct {
	timestamp string
	symbol    string
}

// MergeTrades puts incoming ahead of existing, drops repeats of a
// (timestamp, symbol) pair keeping the first, sorts newest first and keeps 200.
// Neither input is modified.
func MergeTrades(existing, incoming []types.Transaction) []types.Transaction {
	combined := make([]types.Transaction, 0, len(incoming)+len(existing))
	seen := make(map[tradeKey]struct{}, len(incoming)+len(existing))
	for _, list := range [][]types.Transaction{incoming, existing} {
		for _, t := range list {
			k := tradeKey{t.Timestamp, t.Symbol}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			combined = append(combined, t)
		}
	}
	return NewestTrades(combined)
}

// NewestTrades returns a copy sorted newest first, truncated to 200.
// Unparseable timestamps sort last.
func NewestTrades(trades []types.Transaction) []types.Transaction {
	out := make([]types.Transaction, len(trades))
	copy(out, trades)

	keys := make([]int64, len(out))
	for i, t := range out {
		keys[i] = tradeTime(t.Timestamp)
	}
	sort.Stable(byTimeDesc{out, keys})

	if len(out) > MaxTrades {
		out = out[:MaxTrades]
	}
	return out
}

// TailLogs keeps the last 200 logs in the order given; the backend sends them oldest first.
func TailLogs(logs []types.AgentLog) []types.AgentLog {
	start := 0
	if len(logs) > MaxLogs {
		start = len(logs) - MaxLogs
	}
	out := make([]types.AgentLog, len(logs)-start)
	copy(out, logs[start:])
	return out
}

// ActivityFeed interleaves trades and agent logs into one feed, newest first.
func ActivityFeed(trades []types.Transaction, logs []types.AgentLog) []types.ActivityEntry {
	feed := make([]types.ActivityEntry, 0, len(trades)+len(logs))
	for _, t := range trades {
		ts, _ := types.ParseTimestamp(t.Timestamp)
		feed = append(feed, types.ActivityEntry{
			Kind:    types.ActivityTrade,
			Time:    ts,
			Content: tradeSummary(t),
		})
	}
	for _, l := range logs {
		ts, _ := types.ParseTimestamp(l.Timestamp)
		feed = append(feed, types.ActivityEntry{
			Kind:    types.ActivityReflection,
			Time:    ts,
			Content: "[" + l.Title + "] " + l.Content,
		})
	}
	sort.SliceStable(feed, func(i, j int) bool { return feed[i].Time.After(feed[j].Time) })
	return feed
}

func tradeTime(s string) int64 {
	t, ok := types.ParseTimestamp(s)
	if !ok {
		return math.MinInt64
	}
	return t.UnixNano()
}

func tradeSummary(t types.Transaction) string {
	return fmt.Sprintf("Executed %s %g %s @ $%g. Reason: %s", t.Side, t.Qty, t.Symbol, t.Price, t.Reason)
}

type byTimeDesc struct {
	trades []types.Transaction
	keys   []int64
}

func (b byTimeDesc) Len() int           { return len(b.trades) }
func (b byTimeDesc) Less(i, j int) bool { return b.keys[i] > b.keys[j] }
func (b byTimeDesc) Swap(i, j int) {
	b.trades[i], b.trades[j] = b.trades[j], b.trades[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}
