package moment

import (
	"math"

	"github.com/m-mizutani/momentseek/pkg/model"
)

const (
	DefaultResolution       = 200
	DefaultFallbackDuration = 150.0
)

type timelineConfig struct {
	resolution       int
	fallbackDuration float64
}

// TimelineOption configures Synthesize
type TimelineOption func(*timelineConfig)

// WithResolution sets the number of samples. Values < 1 are ignored.
func WithResolution(n int) TimelineOption {
	return func(c *timelineConfig) {
		if n > 0 {
			c.resolution = n
		}
	}
}

// WithFallbackDuration sets the duration used while the real one is unknown.
// Values <= 0 are ignored.
func WithFallbackDuration(d float64) TimelineOption {
	return func(c *timelineConfig) {
		if d > 0 && !math.IsInf(d, 0) {
			c.fallbackDuration = d
		}
	}
}

// Synthesize samples the confidence curve of rs over [0, duration).
//
// Sample i is taken at i*duration/resolution; its confidence is the maximum
// confidence among segments containing that time (half-open [start, end)),
// or 0 when none does. A duration that is not a positive finite number is
// replaced by the fallback duration and the timeline is marked Degraded.
// The result always holds exactly resolution points.
func Synthesize(rs model.ResultSet, duration float64, opts ...TimelineOption) *model.Timeline {
	cfg := timelineConfig{
		resolution:       DefaultResolution,
		fallbackDuration: DefaultFallbackDuration,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	degraded := false
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		duration = cfg.fallbackDuration
		degraded = true
	}

	step := duration / float64(cfg.resolution)
	points := make([]model.TimelinePoint, cfg.resolution)
	for i := range points {
		t := float64(i) * step
		points[i] = model.TimelinePoint{
			Time:       t,
			Confidence: coverage(rs, t),
		}
	}

	return &model.Timeline{
		Points:   points,
		Duration: duration,
		Degraded: degraded,
	}
}

func coverage(rs model.ResultSet, t float64) float64 {
	found := false
	maxConf := 0.0
	for _, s := range rs {
		if !s.Contains(t) || math.IsNaN(s.Confidence) {
			continue
		}
		if !found || s.Confidence > maxConf {
			maxConf = s.Confidence
			found = true
		}
	}
	return maxConf
}
