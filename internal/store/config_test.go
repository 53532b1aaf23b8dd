package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-trading-dashboard/internal/series"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", c.Backend.BaseURL)
	assert.Equal(t, "ws://127.0.0.1:8000/ws", c.Backend.StreamURL)
	assert.Equal(t, "QQQ", c.BenchmarkSymbol)
	assert.Equal(t, series.Range1D, c.Range())
	assert.Equal(t, 5*time.Second, c.SnapshotInterval())
	assert.Equal(t, 3*time.Second, c.ReconnectDelay())
	assert.Equal(t, time.Second, c.SampleInterval())
	assert.Equal(t, 5*time.Second, c.PerformanceInterval())
	assert.Equal(t, 30*time.Second, c.RequestTimeout())
	assert.Equal(t, 10*time.Second, c.HandshakeTimeout())
	assert.Equal(t, 10*time.Second, c.ReportInterval())
	assert.Empty(t, c.StatusListen)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	p := writeConfig(t, `
backend:
  base_url: http://bot.internal:9000
  log_requests: true
  handshake_timeout_seconds: 4
  headers:
    X-Dashboard-Token: secret
benchmark_symbol: SPY
default_range: 1W
status_listen: 127.0.0.1:8090
intervals:
  reconnect_seconds: 7
`)
	t.Setenv("DASHBOARD_STREAM_URL", "wss://bot.internal/ws")
	t.Setenv("DASHBOARD_RANGE", "5m")

	c, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "http://bot.internal:9000", c.Backend.BaseURL)
	assert.Equal(t, "wss://bot.internal/ws", c.Backend.StreamURL)
	assert.True(t, c.Backend.LogRequests)
	assert.Equal(t, "SPY", c.BenchmarkSymbol)
	assert.Equal(t, series.Range5m, c.Range())
	assert.Equal(t, 7*time.Second, c.ReconnectDelay())
	assert.Equal(t, 5*time.Second, c.SnapshotInterval())
	assert.Equal(t, "127.0.0.1:8090", c.StatusListen)
	assert.Equal(t, 4*time.Second, c.HandshakeTimeout())
	assert.Equal(t, map[string]string{"X-Dashboard-Token": "secret"}, c.Backend.Headers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"base url scheme":    "backend:\n  base_url: ftp://bot\n",
		"stream url scheme":  "backend:\n  stream_url: http://bot/ws\n",
		"unknown range":      "default_range: 2D\n",
		"negative interval":  "intervals:\n  sample_seconds: -1\n",
		"negative timeout":   "backend:\n  request_timeout_seconds: -5\n",
		"negative handshake": "backend:\n  handshake_timeout_seconds: -1\n",
		"blank header name":  "backend:\n  headers:\n    \" \": x\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "backend: [unclosed"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}
