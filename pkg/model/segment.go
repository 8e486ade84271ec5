package model

import (
	"math"
	"sort"
)

// Segment is a scored time interval within a video, in seconds.
type Segment struct {
	StartTime  float64 `json:"start_time" firestore:"start_time"`
	EndTime    float64 `json:"end_time" firestore:"end_time"`
	Confidence float64 `json:"confidence" firestore:"confidence"`
}

// Valid reports whether the segment satisfies 0 <= start < end with finite values.
// Confidence is not checked; out-of-range values are carried as-is.
func (s Segment) Valid() bool {
	if !isFinite(s.StartTime) || !isFinite(s.EndTime) {
		return false
	}
	return s.StartTime >= 0 && s.StartTime < s.EndTime
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Contains reports whether t falls in [StartTime, EndTime).
func (s Segment) Contains(t float64) bool {
	return t >= s.StartTime && t < s.EndTime
}

// DisplayConfidence returns the confidence clamped into [0, 1] for rendering.
func (s Segment) DisplayConfidence() float64 {
	return clampUnit(s.Confidence)
}

// ResultSet is a ranked collection of segments for one query.
type ResultSet []Segment

// Ranked returns a copy of segments ordered by descending confidence,
// ties broken by ascending start and then ascending end time.
func Ranked(segments []Segment) ResultSet {
	rs := make(ResultSet, len(segments))
	copy(rs, segments)
	sort.SliceStable(rs, func(i, j int) bool {
		return rankBefore(rs[i], rs[j])
	})
	return rs
}

func rankBefore(a, b Segment) bool {
	ca, cb := rankKey(a.Confidence), rankKey(b.Confidence)
	if ca != cb {
		return ca > cb
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return a.EndTime < b.EndTime
}

// NaN sorts last instead of poisoning the comparator.
func rankKey(c float64) float64 {
	if math.IsNaN(c) {
		return math.Inf(-1)
	}
	return c
}

// Empty reports whether the result set holds no segments.
func (rs ResultSet) Empty() bool {
	return len(rs) == 0
}

// Best returns the highest ranked segment. ok is false for an empty set.
func (rs ResultSet) Best() (Segment, bool) {
	if len(rs) == 0 {
		return Segment{}, false
	}
	best := rs[0]
	for _, s := range rs[1:] {
		if rankBefore(s, best) {
			best = s
		}
	}
	return best, true
}

// Top returns at most n leading segments.
func (rs ResultSet) Top(n int) ResultSet {
	if n < 0 || n >= len(rs) {
		return rs
	}
	return rs[:n]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
