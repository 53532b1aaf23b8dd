package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"llm-trading-dashboard/internal/feed"
	"llm-trading-dashboard/internal/logger"
	"llm-trading-dashboard/internal/series"
	"llm-trading-dashboard/internal/state"
	"llm-trading-dashboard/internal/types"
)

// Dashboard is the read side of a sync session
type Dashboard interface {
	ID() string
	Store() *state.Store
	ConnState() feed.ConnState
	Range() series.Range
	ChartFor(r series.Range) []types.ChartPoint
}

// Handler serves read-only views of the synced dashboard state
type Handler struct {
	dashboard Dashboard
	staleAge  time.Duration
	now       func() time.Time
}

// NewHandler creates a new handler. Data older than staleAge is reported stale.
func NewHandler(dashboard Dashboard, staleAge time.Duration) *Handler {
	return &Handler{
		dashboard: dashboard,
		staleAge:  staleAge,
		now:       time.Now,
	}
}

type stateResponse struct {
	SessionID       string              `json:"session_id"`
	Conn            string              `json:"conn"`
	Connected       bool                `json:"connected"`
	Stale           bool                `json:"stale"`
	BotActive       bool                `json:"bot_active"`
	Range           string              `json:"range"`
	Market          *types.MarketStatus `json:"market,omitempty"`
	Portfolio       *types.Portfolio    `json:"portfolio,omitempty"`
	Baseline        *float64            `json:"baseline,omitempty"`
	UnrealizedPL    *float64            `json:"unrealized_pl,omitempty"`
	BenchmarkChange float64             `json:"benchmark_change"`
	Trades          []types.Transaction `json:"trades"`
	Logs            []types.AgentLog    `json:"logs"`
	LastUpdate      *time.Time          `json:"last_update,omitempty"`
}

type chartResponse struct {
	Range  string             `json:"range"`
	Points []types.ChartPoint `json:"points"`
}

type activityEntry struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
	Content string    `json:"content"`
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetState returns the current store snapshot
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	snap := h.dashboard.Store().Snapshot()

	resp := stateResponse{
		SessionID:       h.dashboard.ID(),
		Conn:            h.dashboard.ConnState().String(),
		Connected:       snap.Connected,
		Stale:           snap.Stale(h.now(), h.staleAge),
		BotActive:       snap.BotActive,
		Range:           h.dashboard.Range().String(),
		Market:          snap.MarketStatus,
		Portfolio:       snap.Portfolio,
		BenchmarkChange: snap.BenchmarkChange,
		Trades:          snap.Trades,
		Logs:            snap.Logs,
	}
	if p := snap.Portfolio; p != nil {
		baseline, upl := p.Baseline(), p.UnrealizedPL()
		resp.Baseline = &baseline
		resp.UnrealizedPL = &upl
	}
	if !snap.LastUpdate.IsZero() {
		t := snap.LastUpdate.UTC()
		resp.LastUpdate = &t
	}

	respondJSON(w, r, http.StatusOK, resp)
}

// GetChart returns the plotted series for ?range=, defaulting to the selected range
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	rng := h.dashboard.Range()
	if q := r.URL.Query().Get("range"); q != "" {
		parsed, err := series.ParseRange(q)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rng = parsed
	}

	points := h.dashboard.ChartFor(rng)
	if points == nil {
		points = []types.ChartPoint{}
	}
	respondJSON(w, r, http.StatusOK, chartResponse{Range: rng.String(), Points: points})
}

// GetActivity returns trades and agent logs as one feed, newest first
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	snap := h.dashboard.Store().Snapshot()
	entries := state.ActivityFeed(snap.Trades, snap.Logs)

	out := make([]activityEntry, len(entries))
	for i, e := range entries {
		out[i] = activityEntry{Kind: e.Kind, Time: e.Time, Content: e.Content}
	}
	respondJSON(w, r, http.StatusOK, out)
}

// NotFound answers unknown paths with a JSON error
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusNotFound, "not found")
}

// MethodNotAllowed answers writes to the read-only routes
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug(r.Context(), "Failed to write status response", "path", r.URL.Path, "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"error": message})
}
