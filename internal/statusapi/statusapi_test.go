package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-trading-dashboard/internal/feed"
	"llm-trading-dashboard/internal/series"
	"llm-trading-dashboard/internal/state"
	"llm-trading-dashboard/internal/types"
)

type fakeDashboard struct {
	store    *state.Store
	selected series.Range
	charts   map[series.Range][]types.ChartPoint

	mu    sync.Mutex
	asked []series.Range
}

func (f *fakeDashboard) ID() string                { return "session-1" }
func (f *fakeDashboard) Store() *state.Store       { return f.store }
func (f *fakeDashboard) ConnState() feed.ConnState { return feed.StateOpen }
func (f *fakeDashboard) Range() series.Range       { return f.selected }

func (f *fakeDashboard) ChartFor(r series.Range) []types.ChartPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, r)
	return f.charts[r]
}

func (f *fakeDashboard) charted() []series.Range {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]series.Range(nil), f.asked...)
}

func newFixture() (*fakeDashboard, *httptest.Server) {
	d := &fakeDashboard{
		store:    state.NewStore(),
		selected: series.Range1D,
		charts:   map[series.Range][]types.ChartPoint{},
	}
	srv := httptest.NewServer(SetupRoutes(NewHandler(d, time.Minute)))
	return d, srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	_, srv := newFixture()
	defer srv.Close()

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetState(t *testing.T) {
	d, srv := newFixture()
	defer srv.Close()

	initial := 1000.0
	d.store.SetConnected(true)
	d.store.ApplyPortfolio(types.Portfolio{
		Equity:         1100,
		InitialCapital: &initial,
		Positions:      []types.Position{{Symbol: "AAPL", Qty: 1, UnrealizedPL: 12.5}},
	})
	d.store.ApplyStatus(types.BotStatus{BotActive: true, MarketStatus: "open"})

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/state", &body))

	assert.Equal(t, "session-1", body["session_id"])
	assert.Equal(t, "open", body["conn"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, false, body["stale"])
	assert.Equal(t, true, body["bot_active"])
	assert.Equal(t, "1D", body["range"])
	assert.Equal(t, 1000.0, body["baseline"])
	assert.Equal(t, 12.5, body["unrealized_pl"])
	assert.Equal(t, "open", body["market"].(map[string]any)["status"])
	assert.NotEmpty(t, body["last_update"])
	assert.Equal(t, []any{}, body["trades"])
}

func TestGetState_EmptyStoreIsStale(t *testing.T) {
	_, srv := newFixture()
	defer srv.Close()

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/state", &body))

	assert.Equal(t, true, body["stale"])
	assert.NotContains(t, body, "portfolio")
	assert.NotContains(t, body, "last_update")
}

func TestGetChart(t *testing.T) {
	d, srv := newFixture()
	defer srv.Close()
	d.charts[series.Range1W] = []types.ChartPoint{{PerformancePoint: types.PerformancePoint{Date: "2024-01-02", Equity: 1000}}}

	var body chartResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/chart?range=1W", &body))
	assert.Equal(t, "1W", body.Range)
	require.Len(t, body.Points, 1)
	assert.Equal(t, "2024-01-02", body.Points[0].Date)

	// no range falls back to the selected one and still returns a list
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/chart", &body))
	assert.Equal(t, "1D", body.Range)
	assert.Empty(t, body.Points)
	assert.Equal(t, []series.Range{series.Range1W, series.Range1D}, d.charted())
}

func TestGetChart_UnknownRange(t *testing.T) {
	d, srv := newFixture()
	defer srv.Close()

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/chart?range=2D", &body))
	assert.Contains(t, body["error"], "unknown range")
	assert.Empty(t, d.charted())
}

func TestGetActivity(t *testing.T) {
	d, srv := newFixture()
	defer srv.Close()

	d.store.ReplaceTrades([]types.Transaction{
		{Timestamp: "2024-01-02T10:00:00", Side: "buy", Symbol: "AAPL", Qty: 2, Price: 150, Reason: "momentum"},
	})
	d.store.ReplaceLogs([]types.AgentLog{
		{Timestamp: "2024-01-02T11:00:00", Title: "Reflection", Content: "holding"},
	})

	var body []activityEntry
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/activity", &body))
	require.Len(t, body, 2)
	assert.Equal(t, types.ActivityReflection, body[0].Kind)
	assert.Equal(t, "[Reflection] holding", body[0].Content)
	assert.Equal(t, types.ActivityTrade, body[1].Kind)
	assert.Equal(t, "Executed buy 2 AAPL @ $150. Reason: momentum", body[1].Content)
}

func TestRoutes_RejectWrites(t *testing.T) {
	_, srv := newFixture()
	defer srv.Close()

	for _, path := range []string{"/health", "/api/v1/state", "/api/v1/chart", "/api/v1/activity"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
		assert.Equal(t, "method not allowed", body["error"], path)
	}
}

func TestRoutes_UnknownPath(t *testing.T) {
	_, srv := newFixture()
	defer srv.Close()

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/positions", &body))
	assert.Equal(t, "not found", body["error"])
}

func TestServe_StopsWithContext(t *testing.T) {
	d := &fakeDashboard{store: state.NewStore(), selected: series.Range5S}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, ln, NewHandler(d, time.Minute)) }()

	var body map[string]string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&body) == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "healthy", body["status"])

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
