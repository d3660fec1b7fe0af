package tracker

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultIntervalSec is used when no valid interval is configured.
	DefaultIntervalSec = 10
	// MinInterval is the polling floor.
	MinInterval = 2 * time.Second
	// DefaultInterval is the fallback for zero, negative or non-numeric input.
	DefaultInterval = DefaultIntervalSec * time.Second
)

// MaxInterval is the longest period a time.Duration can hold in whole seconds.
const MaxInterval = time.Duration(math.MaxInt64/int64(time.Second)) * time.Second

var maxIntervalSec = MaxInterval.Seconds()

// EffectiveInterval converts the configured seconds into the polling period:
// invalid, zero or negative values fall back to 10s and anything below 2s is
// raised to 2s.
func EffectiveInterval(sec float64) time.Duration {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec <= 0 {
		return DefaultInterval
	}
	if sec > maxIntervalSec {
		return MaxInterval
	}
	d := time.Duration(sec * float64(time.Second))
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// ParseIntervalSeconds reads user text input; non-numeric text yields 0,
// which EffectiveInterval maps to the default period.
func ParseIntervalSeconds(text string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
