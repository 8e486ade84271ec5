package model

// TimelinePoint is one sample of the confidence curve.
type TimelinePoint struct {
	Time       float64 `json:"time"`
	Confidence float64 `json:"confidence"`
}

// DisplayConfidence returns the confidence clamped into [0, 1].
func (p TimelinePoint) DisplayConfidence() float64 {
	return clampUnit(p.Confidence)
}

// Timeline is a fixed-resolution confidence curve over [0, Duration).
type Timeline struct {
	Points   []TimelinePoint `json:"points"`
	Duration float64         `json:"duration"`

	// Degraded is set when the video duration was unknown and a fallback
	// duration was used for sampling.
	Degraded bool `json:"degraded"`
}

// Peak returns the sample with the highest confidence, earliest first.
func (t *Timeline) Peak() (TimelinePoint, bool) {
	if t == nil || len(t.Points) == 0 {
		return TimelinePoint{}, false
	}
	peak := t.Points[0]
	for _, p := range t.Points[1:] {
		if p.Confidence > peak.Confidence {
			peak = p
		}
	}
	return peak, true
}
