package model

import (
	"context"
	"io"
)

// Video is the media payload sent to the prediction service.
type Video struct {
	Label    string
	MIMEType string

	// Duration in seconds, 0 when not known yet.
	Duration float64

	Open func(ctx context.Context) (io.ReadCloser, error)
}

// PredictInput is a request to the prediction service.
type PredictInput struct {
	Video *Video
	Query string
}

// Prediction is the raw response of the prediction service. Raw holds the
// JSON payload, expected as {"predicted_moments": [[start, end, confidence], ...]}.
type Prediction struct {
	Raw []byte
}
