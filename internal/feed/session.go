package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/series"
	"llm-trading-dashboard/internal/state"
	"llm-trading-dashboard/internal/types"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
)

const eventBuffer = 64

// Options tunes a Session. Zero durations take the defaults.
type Options struct {
	StreamURL       string
	BenchmarkSymbol string
	Range           series.Range

	SnapshotInterval    time.Duration
	ReconnectDelay      time.Duration
	SampleInterval      time.Duration
	PerformanceInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		StreamURL:           "ws://127.0.0.1:8000/ws",
		BenchmarkSymbol:     "QQQ",
		Range:               series.Range1D,
		SnapshotInterval:    5 * time.Second,
		ReconnectDelay:      3 * time.Second,
		SampleInterval:      time.Second,
		PerformanceInterval: 5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StreamURL == "" {
		o.StreamURL = d.StreamURL
	}
	if o.BenchmarkSymbol == "" {
		o.BenchmarkSymbol = d.BenchmarkSymbol
	}
	if o.Range == "" {
		o.Range = d.Range
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = d.SnapshotInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = d.SampleInterval
	}
	if o.PerformanceInterval <= 0 {
		o.PerformanceInterval = d.PerformanceInterval
	}
	return o
}

// Source is what a session reads from the bot backend.
type Source interface {
	interfaces.SnapshotSource
	interfaces.SeriesSource
}

// Session keeps a Store in sync with the bot backend: it holds the push
// connection open, refreshes snapshots while connected, samples equity into
// the live buffer and polls the long-range chart series.
//
// One goroutine owns the connection lifecycle. Readers, fetches and timers
// only post to it; once the session stops their results are dropped.
type Session struct {
	id      string
	opts    Options
	source  Source
	dialer  interfaces.StreamDialer
	store   *state.Store
	buffer  *series.SampleBuffer
	fetcher *SnapshotFetcher

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan loopMsg
	done    chan struct{}
	wg      sync.WaitGroup
	// lifeMu orders Start against Stop; ctx, cancel and the first wg.Add are
	// set under it.
	lifeMu  sync.Mutex
	started atomic.Bool
	stopped atomic.Bool

	mu        sync.RWMutex
	machine   Machine
	selected  series.Range
	longRange series.Range

	// owned by the loop goroutine
	conns          map[uint64]interfaces.StreamConn
	refresh        *time.Ticker
	reconnectTimer *time.Timer
}

type loopMsg interface{ isLoopMsg() }

type connEvent struct {
	ev   Event
	conn interfaces.StreamConn
}

type streamData struct {
	gen  uint64
	data []byte
}

type perfResult struct {
	period string
	perf   []types.PerformancePoint
	bench  []types.BenchmarkPoint
	err    error
}

type rangeSelected struct{}

func (connEvent) isLoopMsg()     {}
func (streamData) isLoopMsg()    {}
func (perfResult) isLoopMsg()    {}
func (rangeSelected) isLoopMsg() {}

func NewSession(source Source, dialer interfaces.StreamDialer, opts Options) *Session {
	opts = opts.withDefaults()
	store := state.NewStore()

	s := &Session{
		id:       uuid.NewString(),
		opts:     opts,
		source:   source,
		dialer:   dialer,
		store:    store,
		buffer:   series.NewSampleBuffer(),
		fetcher:  NewSnapshotFetcher(source, store),
		events:   make(chan loopMsg, eventBuffer),
		done:     make(chan struct{}),
		machine:  NewMachine(opts.ReconnectDelay),
		selected: opts.Range,
		conns:    make(map[uint64]interfaces.StreamConn),
	}
	s.longRange = series.Range1D
	if !opts.Range.IsShort() {
		s.longRange = opts.Range
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Store is the session's state. It is closed when the session stops.
func (s *Session) Store() *state.Store { return s.store }

func (s *Session) Buffer() *series.SampleBuffer { return s.buffer }

func (s *Session) ConnState() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.State
}

func (s *Session) Range() series.Range {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SetRange selects the displayed range. Choosing a long range refetches its
// series right away; the previous long range's data is not shown for it.
// Ranges outside series.Ranges are rejected with series.ErrUnknownRange.
func (s *Session) SetRange(r series.Range) error {
	if _, err := series.ParseRange(string(r)); err != nil {
		return err
	}

	s.mu.Lock()
	s.selected = r
	changed := !r.IsShort() && r != s.longRange
	if changed {
		s.longRange = r
	}
	s.mu.Unlock()

	if changed && s.started.Load() {
		s.post(rangeSelected{})
	}
	return nil
}

// Chart derives the plotted series for the selected range.
func (s *Session) Chart() []types.ChartPoint {
	return s.ChartFor(s.Range())
}

// ChartFor derives the plotted series for r with its benchmark line. Short
// ranges come from the live buffer and align against the last fetched
// benchmark series; the linear fallback applies only when there is none.
func (s *Session) ChartFor(r series.Range) []types.ChartPoint {
	snap := s.store.Snapshot()

	var (
		long  []types.PerformancePoint
		bench []types.BenchmarkPoint
	)
	switch {
	case r.IsShort():
		bench = snap.Benchmark
	case snap.PerformancePeriod == r.String():
		long, bench = snap.Performance, snap.Benchmark
	}
	points := series.Derive(r, s.buffer.Samples(), long)
	return series.AlignBenchmark(points, bench, snap.BenchmarkChange)
}

// Start connects and begins syncing. It returns immediately; connection
// failures are retried in the background. Cancelling ctx tears the session
// down like Stop.
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.stopped.Load() {
		return ErrStopped
	}
	if s.started.Load() {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started.Store(true)
	logger.Info(ctx, "Starting sync session",
		"session_id", s.id,
		"stream_url", s.opts.StreamURL,
		"range", s.Range().String())

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop tears the session down: timers are cancelled, the connection closed
// and the store frozen. It waits for background work until ctx is done.
func (s *Session) Stop(ctx context.Context) error {
	s.lifeMu.Lock()
	if !s.stopped.CompareAndSwap(false, true) {
		s.lifeMu.Unlock()
		return nil
	}
	if !s.started.Load() {
		s.lifeMu.Unlock()
		s.store.Close()
		close(s.done)
		return nil
	}
	s.lifeMu.Unlock()
	s.cancel()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logger.Info(ctx, "Sync session stopped", "session_id", s.id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer s.wg.Done()

	sample := time.NewTicker(s.opts.SampleInterval)
	defer sample.Stop()
	perf := time.NewTicker(s.opts.PerformanceInterval)
	defer perf.Stop()

	s.apply(Event{Kind: EventStart})
	s.pollPerformance()

	for {
		var refreshC <-chan time.Time
		if s.refresh != nil {
			refreshC = s.refresh.C
		}

		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case msg := <-s.events:
			s.handle(msg)

		case <-refreshC:
			s.fetchSnapshot()

		case now := <-sample.C:
			s.sample(now)

		case <-perf.C:
			s.pollPerformance()
		}
	}
}

func (s *Session) teardown() {
	s.apply(Event{Kind: EventStop})
	for gen, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, gen)
	}
	s.store.Close()
	close(s.done)
}

func (s *Session) handle(msg loopMsg) {
	switch m := msg.(type) {
	case connEvent:
		if m.ev.Kind == EventOpened && m.conn != nil {
			s.conns[m.ev.Gen] = m.conn
		}
		s.apply(m.ev)

	case streamData:
		s.mu.RLock()
		current := s.machine.Current(m.gen)
		s.mu.RUnlock()
		if !current {
			logger.Debug(s.ctx, "Dropping message from superseded connection", "gen", m.gen)
			return
		}
		s.applyMessage(m.gen, m.data)

	case perfResult:
		s.applyPerformance(m)

	case rangeSelected:
		s.pollPerformance()
	}
}

func (s *Session) applyMessage(gen uint64, data []byte) {
	msg, err := DecodeMessage(data)
	switch {
	case errors.Is(err, ErrUnknownMessage):
		logger.Debug(s.ctx, "Ignoring stream message", "gen", gen, "error", err)
		return
	case err != nil:
		logger.Warn(s.ctx, "Dropping malformed stream message", "gen", gen, "error", err, "bytes", len(data))
		return
	}
	msg.Apply(s.store)
}

// apply runs one transition and executes its effects.
func (s *Session) apply(ev Event) {
	s.mu.Lock()
	prev := s.machine
	next, effects := Transition(prev, ev)
	s.machine = next
	s.mu.Unlock()

	if prev.State != next.State {
		fields := []any{"session_id", s.id, "from", prev.State.String(), "to", next.State.String(), "gen", next.Gen}
		if ev.Err != nil {
			fields = append(fields, "error", ev.Err.Error())
		}
		if ev.Kind == EventClosed {
			fields = append(fields, "clean", ev.Clean)
		}
		logger.Stream(s.ctx, ev.Kind.String(), fields...)
	}

	for _, e := range effects {
		s.execute(e)
	}
}

func (s *Session) execute(e Effect) {
	switch e.Kind {
	case EffectDial:
		s.wg.Add(1)
		go s.connect(e.Gen)

	case EffectCloseConn:
		if conn, ok := s.conns[e.Gen]; ok {
			_ = conn.Close()
			delete(s.conns, e.Gen)
		}

	case EffectFetchSnapshot:
		s.fetchSnapshot()

	case EffectStartRefresh:
		if s.refresh != nil {
			s.refresh.Stop()
		}
		s.refresh = time.NewTicker(s.opts.SnapshotInterval)

	case EffectStopRefresh:
		if s.refresh != nil {
			s.refresh.Stop()
			s.refresh = nil
		}

	case EffectScheduleReconnect:
		if s.reconnectTimer != nil {
			s.reconnectTimer.Stop()
		}
		gen := e.Gen
		s.reconnectTimer = time.AfterFunc(e.Delay, func() {
			s.post(connEvent{ev: Event{Kind: EventReconnectDue, Gen: gen}})
		})
		logger.Stream(s.ctx, "reconnect_scheduled", "session_id", s.id, "delay_ms", e.Delay.Milliseconds(), "gen", gen)

	case EffectCancelReconnect:
		if s.reconnectTimer != nil {
			s.reconnectTimer.Stop()
			s.reconnectTimer = nil
		}

	case EffectSetConnected:
		s.store.SetConnected(e.Connected)
	}
}

// connect dials one connection attempt and then reads it until it closes.
// Its events carry gen so the loop can tell them from a later attempt's.
func (s *Session) connect(gen uint64) {
	defer s.wg.Done()

	conn, err := s.dialer.Dial(s.ctx, s.opts.StreamURL)
	if err != nil {
		s.post(connEvent{ev: Event{Kind: EventDialFailed, Gen: gen, Err: err}})
		return
	}
	closeOnStop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer closeOnStop()

	if !s.post(connEvent{ev: Event{Kind: EventOpened, Gen: gen}, conn: conn}) {
		_ = conn.Close()
		return
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.post(connEvent{ev: Event{Kind: EventClosed, Gen: gen, Clean: IsCleanClose(err), Err: err}})
			return
		}
		if !s.post(streamData{gen: gen, data: data}) {
			return
		}
	}
}

// post hands msg to the loop. It reports false once the session has torn down.
func (s *Session) post(msg loopMsg) bool {
	select {
	case s.events <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) fetchSnapshot() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetcher.Fetch(s.ctx)
	}()
}

func (s *Session) sample(now time.Time) {
	equity, baseline, ok := s.store.Latest()
	if !ok {
		return
	}
	s.buffer.Record(now, equity, baseline)
}

// pollPerformance fetches the long-range series and benchmark for the last
// selected long range. It keeps running while a short range is displayed.
func (s *Session) pollPerformance() {
	s.mu.RLock()
	period := s.longRange.String()
	s.mu.RUnlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		res := perfResult{period: period}
		res.perf, res.err = s.source.Performance(s.ctx, period)
		if res.err == nil {
			res.bench, res.err = s.source.Benchmark(s.ctx, s.opts.BenchmarkSymbol, period)
		}
		s.post(res)
	}()
}

func (s *Session) applyPerformance(r perfResult) {
	if r.err != nil {
		if s.ctx.Err() == nil {
			logger.Warn(s.ctx, "Performance refresh failed, keeping last data", "period", r.period, "error", r.err)
		}
		return
	}

	s.mu.RLock()
	current := s.longRange.String()
	s.mu.RUnlock()
	if r.period != current {
		logger.Debug(s.ctx, "Discarding performance for deselected range", "period", r.period, "selected", current)
		return
	}

	s.store.SetPerformance(r.period, series.TailPerformance(r.perf, series.MaxLongPoints), r.bench)
}
