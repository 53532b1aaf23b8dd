package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llm-trading-dashboard/internal/series"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Backend struct {
		BaseURL          string `yaml:"base_url"`
		StreamURL        string `yaml:"stream_url"`
		RequestTimeout   int    `yaml:"request_timeout_seconds"`
		HandshakeTimeout int    `yaml:"handshake_timeout_seconds"`
		LogRequests      bool   `yaml:"log_requests"`

		// Headers go on every REST request and on the stream handshake.
		Headers map[string]string `yaml:"headers"`
	} `yaml:"backend"`
	BenchmarkSymbol string `yaml:"benchmark_symbol"`
	DefaultRange    string `yaml:"default_range"`
	// StatusListen is the address of the read-only status API; empty disables it.
	StatusListen    string `yaml:"status_listen"`
	Intervals       struct {
		SnapshotSeconds    int `yaml:"snapshot_seconds"`
		ReconnectSeconds   int `yaml:"reconnect_seconds"`
		SampleSeconds      int `yaml:"sample_seconds"`
		PerformanceSeconds int `yaml:"performance_seconds"`
		ReportSeconds      int `yaml:"report_seconds"`
	} `yaml:"intervals"`
}

// DefaultConfig matches the bot backend's local development defaults.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Backend.StreamURL == "" {
		c.Backend.StreamURL = "ws://127.0.0.1:8000/ws"
	}
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = 30
	}
	if c.Backend.HandshakeTimeout == 0 {
		c.Backend.HandshakeTimeout = 10
	}
	if c.BenchmarkSymbol == "" {
		c.BenchmarkSymbol = "QQQ"
	}
	if c.DefaultRange == "" {
		c.DefaultRange = "1D"
	}
	if c.Intervals.SnapshotSeconds == 0 {
		c.Intervals.SnapshotSeconds = 5
	}
	if c.Intervals.ReconnectSeconds == 0 {
		c.Intervals.ReconnectSeconds = 3
	}
	if c.Intervals.SampleSeconds == 0 {
		c.Intervals.SampleSeconds = 1
	}
	if c.Intervals.PerformanceSeconds == 0 {
		c.Intervals.PerformanceSeconds = 5
	}
	if c.Intervals.ReportSeconds == 0 {
		c.Intervals.ReportSeconds = 10
	}
}

// applyEnv lets deployments point the dashboard elsewhere without editing config.yaml
func (c *Config) applyEnv() {
	if v := os.Getenv("DASHBOARD_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("DASHBOARD_STREAM_URL"); v != "" {
		c.Backend.StreamURL = v
	}
	if v := os.Getenv("DASHBOARD_BENCHMARK_SYMBOL"); v != "" {
		c.BenchmarkSymbol = v
	}
	if v := os.Getenv("DASHBOARD_RANGE"); v != "" {
		c.DefaultRange = v
	}
	if v := os.Getenv("DASHBOARD_STATUS_LISTEN"); v != "" {
		c.StatusListen = v
	}
}

func (c *Config) Validate() error {
	base, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return fmt.Errorf("%w: backend.base_url '%s' must be an http(s) URL", ErrInvalidConfig, c.Backend.BaseURL)
	}
	stream, err := url.Parse(c.Backend.StreamURL)
	if err != nil || (stream.Scheme != "ws" && stream.Scheme != "wss") {
		return fmt.Errorf("%w: backend.stream_url '%s' must be a ws(s) URL", ErrInvalidConfig, c.Backend.StreamURL)
	}
	if strings.TrimSpace(c.BenchmarkSymbol) == "" {
		return fmt.Errorf("%w: benchmark_symbol cannot be empty", ErrInvalidConfig)
	}
	if _, err := series.ParseRange(c.DefaultRange); err != nil {
		return fmt.Errorf("%w: default_range: %v", ErrInvalidConfig, err)
	}
	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("%w: backend.request_timeout_seconds must be >= 0, got %d", ErrInvalidConfig, c.Backend.RequestTimeout)
	}
	if c.Backend.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: backend.handshake_timeout_seconds must be >= 0, got %d", ErrInvalidConfig, c.Backend.HandshakeTimeout)
	}
	for k := range c.Backend.Headers {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: backend.headers has an empty header name", ErrInvalidConfig)
		}
	}
	iv := c.Intervals
	for name, v := range map[string]int{
		"snapshot_seconds":    iv.SnapshotSeconds,
		"reconnect_seconds":   iv.ReconnectSeconds,
		"sample_seconds":      iv.SampleSeconds,
		"performance_seconds": iv.PerformanceSeconds,
		"report_seconds":      iv.ReportSeconds,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: intervals.%s must be positive, got %d", ErrInvalidConfig, name, v)
		}
	}
	return nil
}

// Range is the validated default_range.
func (c *Config) Range() series.Range {
	r, _ := series.ParseRange(c.DefaultRange)
	return r
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Backend.HandshakeTimeout) * time.Second
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Intervals.SnapshotSeconds) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Intervals.ReconnectSeconds) * time.Second
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Intervals.SampleSeconds) * time.Second
}

func (c *Config) PerformanceInterval() time.Duration {
	return time.Duration(c.Intervals.PerformanceSeconds) * time.Second
}

func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Intervals.ReportSeconds) * time.Second
}

// LoadConfig reads path, fills defaults, applies env overrides and validates.
// A missing file is not an error: the defaults target a local backend.
func LoadConfig(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
