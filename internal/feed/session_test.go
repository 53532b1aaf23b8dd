package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-trading-dashboard/internal/api"
	"llm-trading-dashboard/internal/interfaces"
	"llm-trading-dashboard/internal/series"
	"llm-trading-dashboard/internal/types"
)

func fastOptions(streamURL string) Options {
	return Options{
		StreamURL:           streamURL,
		BenchmarkSymbol:     "QQQ",
		Range:               series.Range1D,
		SnapshotInterval:    50 * time.Millisecond,
		ReconnectDelay:      100 * time.Millisecond,
		SampleInterval:      10 * time.Millisecond,
		PerformanceInterval: 50 * time.Millisecond,
	}
}

// botServer serves the REST snapshot endpoints and upgrades /ws.
type botServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	restDown atomic.Bool
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	bs := &botServer{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bs.conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bot_active":true,"market_status":"open","next_open":"","next_close":"","qqq_change":0.5}`)
	})
	mux.HandleFunc("GET /portfolio", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"equity":1100,"buying_power":100,"initial_capital":1000,"positions":[]}`)
	})
	mux.HandleFunc("GET /trades", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"timestamp":"2024-05-01T09:00:00Z","side":"buy","symbol":"SNAP","qty":1,"price":10,"reason":"r"}]`)
	})
	mux.HandleFunc("GET /logs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("GET /performance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"date":"2024-05-01","equity":1000},{"date":"2024-05-02","equity":1100}]`)
	})
	mux.HandleFunc("GET /benchmark", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"date":"2024-05-01","close":400},{"date":"2024-05-02","close":440}]`)
	})

	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" && bs.restDown.Load() {
			http.Error(w, "restarting", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(bs.Close)
	return bs
}

func (bs *botServer) streamURL() string {
	return "ws" + strings.TrimPrefix(bs.URL, "http") + "/ws"
}

func (bs *botServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-bs.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no stream connection")
		return nil
	}
}

func TestSession_SyncsAndReconnects(t *testing.T) {
	bs := newBotServer(t)
	backend := api.NewBackend(api.NewClient(api.WithBaseURL(bs.URL)))
	opts := fastOptions(bs.streamURL())
	opts.SnapshotInterval = time.Hour
	sess := NewSession(backend, NewDialer(), opts)
	store := sess.Store()

	require.NoError(t, sess.Start(context.Background()))
	assert.ErrorIs(t, sess.Start(context.Background()), ErrAlreadyStarted)

	first := bs.next(t)
	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.Connected && snap.Portfolio != nil && len(snap.Trades) == 1
	}, 3*time.Second, 10*time.Millisecond)
	bs.restDown.Store(true)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, first.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"trades","data":[{"timestamp":"2024-05-01T10:00:00Z","side":"sell","symbol":"PUSH","qty":1,"price":11,"reason":"r"}]}`)))
	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return len(snap.Trades) > 0 && snap.Trades[0].Symbol == "PUSH"
	}, 3*time.Second, 10*time.Millisecond, "malformed message must not drop the connection")

	closedAt := time.Now()
	_ = first.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "restart"), time.Now().Add(time.Second))
	_ = first.Close()

	second := bs.next(t)
	assert.GreaterOrEqual(t, time.Since(closedAt), 100*time.Millisecond, "reconnect waits the fixed delay")

	require.NoError(t, second.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"state","bot_active":false,"market_status":"closed","next_open":"","next_close":"","portfolio":{"equity":1200,"buying_power":0,"positions":[]}}`)))
	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return !snap.BotActive && snap.Portfolio != nil && snap.Portfolio.Equity == 1200
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1000.0, *store.Snapshot().Portfolio.InitialCapital)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sess.Stop(ctx))

	assert.Equal(t, StateStopped, sess.ConnState())
	assert.False(t, store.Snapshot().Connected)
	assert.False(t, store.ApplyPortfolio(types.Portfolio{Equity: 1}))
	<-sess.Done()
}

type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	attempts atomic.Int32
	dial     func(ctx context.Context, attempt int32) (interfaces.StreamConn, error)
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (interfaces.StreamConn, error) {
	return d.dial(ctx, d.attempts.Add(1))
}

type countingSource struct {
	*fakeSource
	statusCalls atomic.Int32
}

func (c *countingSource) Status(ctx context.Context) (types.BotStatus, error) {
	c.statusCalls.Add(1)
	return c.fakeSource.Status(ctx)
}

func TestSession_RefreshRunsOnlyWhileOpen(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{dial: func(_ context.Context, attempt int32) (interfaces.StreamConn, error) {
		if attempt > 1 {
			return nil, errors.New("refused")
		}
		return conn, nil
	}}
	src := &countingSource{fakeSource: fullSource()}
	opts := fastOptions("ws://unused")
	opts.SnapshotInterval = 10 * time.Millisecond
	opts.ReconnectDelay = time.Hour

	sess := NewSession(src, dialer, opts)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop(context.Background())

	require.Eventually(t, func() bool { return src.statusCalls.Load() >= 4 }, 3*time.Second, 5*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return sess.ConnState() == StateReconnectPending }, 3*time.Second, 5*time.Millisecond)
	assert.False(t, sess.Store().Snapshot().Connected)

	// give an in-flight fetch time to land, then the count must hold still
	time.Sleep(30 * time.Millisecond)
	calls := src.statusCalls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, src.statusCalls.Load())
	assert.Equal(t, int32(1), dialer.attempts.Load(), "reconnect waits the full delay")
}

func TestSession_RetriesDialForever(t *testing.T) {
	dialer := &fakeDialer{dial: func(context.Context, int32) (interfaces.StreamConn, error) {
		return nil, errors.New("connection refused")
	}}
	opts := fastOptions("ws://unused")
	opts.ReconnectDelay = 10 * time.Millisecond
	sess := NewSession(fullSource(), dialer, opts)

	require.NoError(t, sess.Start(context.Background()))
	require.Eventually(t, func() bool { return dialer.attempts.Load() >= 5 }, 3*time.Second, 5*time.Millisecond)
	assert.False(t, sess.Store().Snapshot().Connected)

	require.NoError(t, sess.Stop(context.Background()))
	attempts := dialer.attempts.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, attempts, dialer.attempts.Load(), "no dial after teardown")
}

// blockingSource holds every status call until release is closed.
type blockingSource struct {
	*fakeSource
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSource) Status(ctx context.Context) (types.BotStatus, error) {
	b.calls.Add(1)
	<-b.release
	return types.BotStatus{BotActive: true, MarketStatus: "late"}, nil
}

func TestSession_TeardownMakesLateResultsNoop(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{dial: func(context.Context, int32) (interfaces.StreamConn, error) { return conn, nil }}
	src := &blockingSource{fakeSource: fullSource(), release: make(chan struct{})}

	sess := NewSession(src, dialer, fastOptions("ws://unused"))
	require.NoError(t, sess.Start(context.Background()))
	require.Eventually(t, func() bool { return src.calls.Load() > 0 }, 3*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sess.Stop(stopCtx), context.DeadlineExceeded, "a hung request is still in flight")
	<-sess.Done()
	assert.True(t, conn.isClosed())

	close(src.release)
	require.NoError(t, sess.Stop(context.Background()))

	time.Sleep(20 * time.Millisecond)
	snap := sess.Store().Snapshot()
	assert.False(t, snap.BotActive)
	assert.Nil(t, snap.MarketStatus)
	assert.Equal(t, StateStopped, sess.ConnState())
}

func TestSession_StopBeforeStart(t *testing.T) {
	sess := NewSession(fullSource(), &fakeDialer{}, Options{})
	require.NoError(t, sess.Stop(context.Background()))
	assert.ErrorIs(t, sess.Start(context.Background()), ErrStopped)
	<-sess.Done()
}

func TestSession_ChartRanges(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{dial: func(context.Context, int32) (interfaces.StreamConn, error) { return conn, nil }}
	src := fullSource()
	src.perf = []types.PerformancePoint{{Date: "2024-05-01", Equity: 1000}, {Date: "2024-05-02", Equity: 1100}}
	src.bench = []types.BenchmarkPoint{{Date: "2024-05-01", Close: 400}, {Date: "2024-05-02", Close: 440}}

	sess := NewSession(src, dialer, fastOptions("ws://unused"))
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop(context.Background())

	require.Eventually(t, func() bool { return sess.Buffer().Len() >= 3 }, 3*time.Second, 5*time.Millisecond)
	short := sess.ChartFor(series.Range5S)
	require.NotEmpty(t, short)
	for _, p := range short {
		require.NotNil(t, p.PnL)
		assert.InDelta(t, 5.0, *p.PnL, 1e-9)
		assert.NotNil(t, p.BenchmarkEquity)
	}

	require.Eventually(t, func() bool { return len(sess.Chart()) == 2 }, 3*time.Second, 5*time.Millisecond)
	chart := sess.Chart()
	assert.Equal(t, 1000.0, *chart[0].BenchmarkEquity)
	assert.InDelta(t, 1100.0, *chart[1].BenchmarkEquity, 1e-9)

	require.NoError(t, sess.SetRange(series.Range1W))
	assert.Equal(t, series.Range1W, sess.Range())
	require.Eventually(t, func() bool {
		return sess.Store().Snapshot().PerformancePeriod == "1W"
	}, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, sess.SetRange(series.Range30S))
	assert.Len(t, sess.ChartFor(series.Range1W), 2, "long range data survives while a short range is shown")
	assert.Empty(t, sess.ChartFor(series.Range1Y), "no data is shown for a range that was never fetched")
}

func TestSession_DiscardsDeselectedPerformance(t *testing.T) {
	sess := NewSession(fullSource(), &fakeDialer{}, Options{})
	sess.ctx = context.Background()
	require.NoError(t, sess.SetRange(series.Range1M))

	sess.applyPerformance(perfResult{period: "1D", perf: []types.PerformancePoint{{Date: "2024-05-01"}}})
	assert.Empty(t, sess.Store().Snapshot().PerformancePeriod)

	sess.applyPerformance(perfResult{period: "1M", err: errors.New("timeout")})
	assert.Empty(t, sess.Store().Snapshot().PerformancePeriod)

	sess.applyPerformance(perfResult{period: "1M", perf: []types.PerformancePoint{{Date: "2024-05-01", Equity: 1}}})
	snap := sess.Store().Snapshot()
	assert.Equal(t, "1M", snap.PerformancePeriod)
	assert.Len(t, snap.Performance, 1)
}

func TestSession_ShortRangeAlignsToStoredBenchmark(t *testing.T) {
	sess := NewSession(fullSource(), &fakeDialer{}, Options{})
	base := time.Date(2024, 5, 1, 13, 59, 58, 0, time.UTC)
	for i := 0; i < 3; i++ {
		sess.Buffer().Add(series.NewSample(base.Add(time.Duration(i)*time.Second), 1000, 1000))
	}
	sess.Store().SetPerformance("1D", nil, []types.BenchmarkPoint{
		{Date: "2024-05-01T13:59:58Z", Close: 100},
		{Date: "2024-05-01T14:00:00Z", Close: 200},
	})

	chart := sess.ChartFor(series.Range5S)
	require.Len(t, chart, 3)
	var got []float64
	for _, p := range chart {
		require.NotNil(t, p.BenchmarkEquity)
		got = append(got, *p.BenchmarkEquity)
	}
	assert.Equal(t, []float64{1000, 1000, 2000}, got)
}

func TestSession_ShortRangeFallsBackWithoutBenchmark(t *testing.T) {
	sess := NewSession(fullSource(), &fakeDialer{}, Options{})
	change := 10.0
	sess.Store().ApplyStatus(types.BotStatus{QQQChange: &change})
	base := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	sess.Buffer().Add(series.NewSample(base, 1000, 1000))
	sess.Buffer().Add(series.NewSample(base.Add(time.Second), 1000, 1000))

	chart := sess.ChartFor(series.Range5S)
	require.Len(t, chart, 2)
	assert.InDelta(t, 1000.0, *chart[0].BenchmarkEquity, 1e-9)
	assert.InDelta(t, 1100.0, *chart[1].BenchmarkEquity, 1e-9)
}

func TestSession_SetRangeRejectsUnknown(t *testing.T) {
	sess := NewSession(fullSource(), &fakeDialer{}, Options{})
	assert.ErrorIs(t, sess.SetRange(series.Range("2D")), series.ErrUnknownRange)
	assert.ErrorIs(t, sess.SetRange(""), series.ErrUnknownRange)
	assert.Equal(t, series.Range1D, sess.Range())

	require.NoError(t, sess.SetRange(series.Range1m))
	assert.Equal(t, series.Range1m, sess.Range())
}

func TestSession_StopRacingStart(t *testing.T) {
	refuse := &fakeDialer{dial: func(context.Context, int32) (interfaces.StreamConn, error) {
		return nil, errors.New("connection refused")
	}}
	for i := 0; i < 50; i++ {
		sess := NewSession(fullSource(), refuse, fastOptions("ws://unused"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := sess.Start(context.Background())
			if err != nil {
				assert.ErrorIs(t, err, ErrStopped)
			}
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, sess.Stop(ctx))
		}()
		wg.Wait()

		select {
		case <-sess.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("session did not finish after Stop")
		}
	}
}
