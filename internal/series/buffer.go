package series

import (
	"sort"
	"sync"
	"time"

	"llm-trading-dashboard/internal/types"
)

const (
	// MaxSampleAge bounds the rolling history relative to the newest sample.
	MaxSampleAge = 2 * time.Hour
	// MaxSamples caps the history at ~2.7h of 1s samples.
	MaxSamples = 10_000
)

// NewSample computes the P/L percentage of equity against baseline.
// A zero baseline yields 0 rather than dividing by zero.
func NewSample(ts time.Time, equity, baseline float64) types.LiveSample {
	pnl := 0.0
	if baseline != 0 {
		pnl = (equity - baseline) / baseline * 100
	}
	return types.LiveSample{Ts: ts.UnixMilli(), Equity: equity, PnL: pnl}
}

// SampleBuffer is the bounded, time-ordered live equity history behind the
// short chart ranges.
type SampleBuffer struct {
	mu      sync.RWMutex
	samples []types.LiveSample
	maxAge  time.Duration
	maxLen  int
}

func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{
		samples: make([]types.LiveSample, 0, 256),
		maxAge:  MaxSampleAge,
		maxLen:  MaxSamples,
	}
}

// Add inserts s keeping ascending ts order, then evicts everything more than
// 2h older than the newest sample and finally trims to the newest 10,000.
func (b *SampleBuffer) Add(s types.LiveSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.samples)
	if n == 0 || b.samples[n-1].Ts <= s.Ts {
		b.samples = append(b.samples, s)
	} else {
		i := sort.Search(n, func(i int) bool { return b.samples[i].Ts > s.Ts })
		b.samples = append(b.samples, types.LiveSample{})
		copy(b.samples[i+1:], b.samples[i:])
		b.samples[i] = s
	}

	cutoff := b.samples[len(b.samples)-1].Ts - b.maxAge.Milliseconds()
	drop := sort.Search(len(b.samples), func(i int) bool { return b.samples[i].Ts >= cutoff })
	if over := len(b.samples) - drop - b.maxLen; over > 0 {
		drop += over
	}
	if drop > 0 {
		// copy down so the backing array does not grow without bound
		kept := copy(b.samples, b.samples[drop:])
		b.samples = b.samples[:kept]
	}
}

// Record samples equity against baseline at now.
func (b *SampleBuffer) Record(now time.Time, equity, baseline float64) types.LiveSample {
	s := NewSample(now, equity, baseline)
	b.Add(s)
	return s
}

// Samples returns a copy of the buffer, oldest first.
func (b *SampleBuffer) Samples() []types.LiveSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.LiveSample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Window returns a copy of the samples with ts >= latest-window, at most limit
// of the most recent ones. latest is the newest sample's ts.
func (b *SampleBuffer) Window(window time.Duration, limit int) []types.LiveSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return windowSamples(b.samples, window, limit)
}

func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

func (b *SampleBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
}

func windowSamples(samples []types.LiveSample, window time.Duration, limit int) []types.LiveSample {
	if len(samples) == 0 {
		return []types.LiveSample{}
	}
	latest := samples[len(samples)-1].Ts
	cutoff := latest - window.Milliseconds()
	start := sort.Search(len(samples), func(i int) bool { return samples[i].Ts >= cutoff })
	if limit > 0 && len(samples)-start > limit {
		start = len(samples) - limit
	}
	out := make([]types.LiveSample, len(samples)-start)
	copy(out, samples[start:])
	return out
}
