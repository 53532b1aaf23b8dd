package series

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownRange = errors.New("unknown range")

// Range is a chart time-range tag as shown on the range selector.
type Range string

const (
	Range5S  Range = "5S"
	Range15S Range = "15S"
	Range30S Range = "30S"
	Range1m  Range = "1m"
	Range5m  Range = "5m"
	Range1D  Range = "1D"
	Range1W  Range = "1W"
	Range1M  Range = "1M"
	Range3M  Range = "3M"
	Range1Y  Range = "1Y"
	RangeALL Range = "ALL"
)

// Ranges lists every selectable range in selector order.
var Ranges = []Range{Range5S, Range15S, Range30S, Range1m, Range5m, Range1D, Range1W, Range1M, Range3M, Range1Y, RangeALL}

var shortWindows = map[Range]time.Duration{
	Range5S:  5 * time.Second,
	Range15S: 15 * time.Second,
	Range30S: 30 * time.Second,
	Range1m:  time.Minute,
	Range5m:  5 * time.Minute,
}

// ParseRange is case-sensitive: "1m" is one minute, "1M" one month.
func ParseRange(s string) (Range, error) {
	for _, r := range Ranges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
}

// IsShort reports whether the range is served from the local rolling buffer.
func (r Range) IsShort() bool {
	_, ok := shortWindows[r]
	return ok
}

// Window is the lookback of a short range, zero for server-aggregated ranges.
func (r Range) Window() time.Duration {
	return shortWindows[r]
}

func (r Range) String() string {
	return string(r)
}
