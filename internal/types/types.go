package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one holding of the bot's portfolio. Symbol is unique within a Portfolio.
type Position struct {
	Symbol       string   `json:"symbol"`
	Qty          float64  `json:"qty"`
	MarketValue  float64  `json:"market_value"`
	UnrealizedPL float64  `json:"unrealized_pl"`
	AvgCost      *float64 `json:"avg_cost,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	ChangeToday  *float64 `json:"change_today,omitempty"`
}

// Portfolio as served by GET /portfolio and the "state" stream message.
// InitialCapital is nil when the backend omits it.
type Portfolio struct {
	Equity         float64    `json:"equity"`
	BuyingPower    float64    `json:"buying_power"`
	InitialCapital *float64   `json:"initial_capital,omitempty"`
	Positions      []Position `json:"positions"`
}

// Baseline returns the capital P/L is measured against: initial capital when
// known and non-zero, otherwise current equity.
func (p Portfolio) Baseline() float64 {
	if p.InitialCapital != nil && *p.InitialCapital != 0 {
		return *p.InitialCapital
	}
	return p.Equity
}

// UnrealizedPL sums the open P/L of every position.
func (p Portfolio) UnrealizedPL() float64 {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(decimal.NewFromFloat(pos.UnrealizedPL))
	}
	return total.InexactFloat64()
}

// Clone returns a deep copy so callers never share position slices or pointers.
func (p Portfolio) Clone() Portfolio {
	out := p
	if p.InitialCapital != nil {
		v := *p.InitialCapital
		out.InitialCapital = &v
	}
	if p.Positions != nil {
		out.Positions = make([]Position, len(p.Positions))
		copy(out.Positions, p.Positions)
	}
	return out
}

type MarketStatus struct {
	Status    string `json:"status"`
	NextOpen  string `json:"next_open"`
	NextClose string `json:"next_close"`
}

// BotStatus is the body of GET /.
type BotStatus struct {
	BotActive    bool     `json:"bot_active"`
	MarketStatus string   `json:"market_status"`
	NextOpen     string   `json:"next_open"`
	NextClose    string   `json:"next_close"`
	QQQChange    *float64 `json:"qqq_change,omitempty"`
}

func (b BotStatus) Market() MarketStatus {
	return MarketStatus{Status: b.MarketStatus, NextOpen: b.NextOpen, NextClose: b.NextClose}
}

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Transaction is one executed trade. Identity is (Timestamp, Symbol).
type Transaction struct {
	Timestamp string  `json:"timestamp"`
	Side      string  `json:"side"`
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
	Reason    string  `json:"reason"`
	Status    string  `json:"status,omitempty"`
}

type AgentLog struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// LiveSample is one tick of the rolling equity history. Ts is epoch milliseconds.
type LiveSample struct {
	Ts     int64
	Equity float64
	PnL    float64
}

type PerformancePoint struct {
	Date   string   `json:"date"`
	Equity float64  `json:"equity"`
	PnL    *float64 `json:"pnl,omitempty"`
}

type BenchmarkPoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// ChartPoint is a plotted point; BenchmarkEquity is nil when no benchmark close could be matched.
type ChartPoint struct {
	PerformancePoint
	BenchmarkEquity *float64 `json:"benchmark_equity,omitempty"`
}

const CloseStatusSubmitted = "submitted"

type CloseResult struct {
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CloseResponse is the body of POST /positions/close.
type CloseResponse struct {
	Results []CloseResult `json:"results"`
}

const (
	ActivityTrade      = "trade"
	ActivityReflection = "reflection"
)

// ActivityEntry is one line of the combined trade + agent log feed.
type ActivityEntry struct {
	Kind    string
	Time    time.Time
	Content string
}
