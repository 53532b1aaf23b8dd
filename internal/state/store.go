package state

import (
	"sync"
	"time"

	"llm-trading-dashboard/internal/types"
)

// Snapshot is a point-in-time copy of the store. It shares nothing with the store.
type Snapshot struct {
	Portfolio       *types.Portfolio
	MarketStatus    *types.MarketStatus
	Logs            []types.AgentLog
	Trades          []types.Transaction
	BotActive       bool
	BenchmarkChange float64
	Connected       bool

	// long-range chart data for PerformancePeriod
	PerformancePeriod string
	Performance       []types.PerformancePoint
	Benchmark         []types.BenchmarkPoint

	// LastUpdate is when any backend data was last applied; zero until the first update.
	LastUpdate time.Time
}

// Stale reports whether nothing has been applied for longer than maxAge.
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return !s.Connected || s.LastUpdate.IsZero() || now.Sub(s.LastUpdate) > maxAge
}

// Store is the single source of truth for everything received from the bot
// backend. Every mutation replaces a whole slice of state under the lock, and
// subscribers are told after the lock is released. After Close every mutation
// is a no-op.
type Store struct {
	mu     sync.RWMutex
	cur    Snapshot
	closed bool
	now    func() time.Time

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

func NewStore() *Store {
	return &Store{
		cur: Snapshot{
			Logs:   []types.AgentLog{},
			Trades: []types.Transaction{},
		},
		now:  time.Now,
		subs: make(map[chan struct{}]struct{}),
	}
}

// ResolveInitialCapital implements the sticky baseline: a non-zero previous
// value always wins, then the incoming explicit value, then incoming equity.
func ResolveInitialCapital(prev *float64, incoming types.Portfolio) *float64 {
	var v float64
	switch {
	case prev != nil && *prev != 0:
		v = *prev
	case incoming.InitialCapital != nil && *incoming.InitialCapital != 0:
		v = *incoming.InitialCapital
	default:
		v = incoming.Equity
	}
	return &v
}

func (s *Store) update(fn func(cur *Snapshot)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	fn(&s.cur)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Store) applyPortfolio(cur *Snapshot, p types.Portfolio) {
	var prev *float64
	if cur.Portfolio != nil {
		prev = cur.Portfolio.InitialCapital
	}
	next := p.Clone()
	next.InitialCapital = ResolveInitialCapital(prev, p)
	if next.Positions == nil {
		next.Positions = []types.Position{}
	}
	cur.Portfolio = &next
}

func applyStatus(cur *Snapshot, st types.BotStatus) {
	cur.BotActive = st.BotActive
	m := st.Market()
	cur.MarketStatus = &m
	if st.QQQChange != nil {
		cur.BenchmarkChange = *st.QQQChange
	}
}

// ApplyStatus applies the body of GET /.
func (s *Store) ApplyStatus(st types.BotStatus) bool {
	return s.update(func(cur *Snapshot) {
		applyStatus(cur, st)
		cur.LastUpdate = s.now()
	})
}

// ApplyPortfolio replaces the portfolio, keeping the sticky initial capital.
func (s *Store) ApplyPortfolio(p types.Portfolio) bool {
	return s.update(func(cur *Snapshot) {
		s.applyPortfolio(cur, p)
		cur.LastUpdate = s.now()
	})
}

// ApplyState applies a pushed "state" message in one step. A nil portfolio
// leaves the current one in place.
func (s *Store) ApplyState(st types.BotStatus, p *types.Portfolio) bool {
	return s.update(func(cur *Snapshot) {
		applyStatus(cur, st)
		if p != nil {
			s.applyPortfolio(cur, *p)
		}
		cur.LastUpdate = s.now()
	})
}

// ReplaceLogs swaps in the latest logs, keeping the newest 200.
func (s *Store) ReplaceLogs(logs []types.AgentLog) bool {
	next := TailLogs(logs)
	return s.update(func(cur *Snapshot) {
		cur.Logs = next
		cur.LastUpdate = s.now()
	})
}

// ReplaceTrades swaps in a full trade history, newest first, capped at 200.
func (s *Store) ReplaceTrades(trades []types.Transaction) bool {
	next := NewestTrades(trades)
	return s.update(func(cur *Snapshot) {
		cur.Trades = next
		cur.LastUpdate = s.now()
	})
}

// MergeTrades folds pushed trades into the cache.
func (s *Store) MergeTrades(incoming []types.Transaction) bool {
	return s.update(func(cur *Snapshot) {
		cur.Trades = MergeTrades(cur.Trades, incoming)
		cur.LastUpdate = s.now()
	})
}

// SetPerformance replaces the long-range chart data for period.
func (s *Store) SetPerformance(period string, perf []types.PerformancePoint, bench []types.BenchmarkPoint) bool {
	p := make([]types.PerformancePoint, len(perf))
	copy(p, perf)
	b := make([]types.BenchmarkPoint, len(bench))
	copy(b, bench)
	return s.update(func(cur *Snapshot) {
		cur.PerformancePeriod = period
		cur.Performance = p
		cur.Benchmark = b
	})
}

func (s *Store) SetConnected(connected bool) bool {
	s.mu.RLock()
	same := s.cur.Connected == connected
	s.mu.RUnlock()
	if same {
		return false
	}
	return s.update(func(cur *Snapshot) {
		cur.Connected = connected
	})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.cur
	if s.cur.Portfolio != nil {
		p := s.cur.Portfolio.Clone()
		out.Portfolio = &p
	}
	if s.cur.MarketStatus != nil {
		m := *s.cur.MarketStatus
		out.MarketStatus = &m
	}
	out.Logs = append([]types.AgentLog{}, s.cur.Logs...)
	out.Trades = append([]types.Transaction{}, s.cur.Trades...)
	out.Performance = append([]types.PerformancePoint{}, s.cur.Performance...)
	out.Benchmark = append([]types.BenchmarkPoint{}, s.cur.Benchmark...)
	return out
}

// Latest returns the last known equity and P/L baseline, ok=false before the
// first portfolio arrives.
func (s *Store) Latest() (equity, baseline float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.Portfolio == nil {
		return 0, 0, false
	}
	return s.cur.Portfolio.Equity, s.cur.Portfolio.Baseline(), true
}

// Subscribe returns a channel that receives a value after every change.
// Notifications coalesce: a slow reader sees one pending signal, never a backlog.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close freezes the store and closes every subscription channel.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.cur.Connected = false
	s.mu.Unlock()

	s.subsMu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}
