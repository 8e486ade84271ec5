package model

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrMalformedResponse  = goerr.New("malformed prediction response")
	ErrPredictionFailed   = goerr.New("prediction service failed")
	ErrStorageUnavailable = goerr.New("history storage unavailable")
	ErrInvalidClipBounds  = goerr.New("invalid clip bounds")
	ErrRequestSuperseded  = goerr.New("request superseded by a newer one")
	ErrVideoRequired      = goerr.New("video is required")
	ErrQueryRequired      = goerr.New("query text is required")
	ErrHistoryNotFound    = goerr.New("history entry not found")

	ErrInvalidSortField     = goerr.New("invalid sort field")
	ErrInvalidSortDirection = goerr.New("invalid sort direction")
)

// Summary returns a stable message that is safe to show to end users.
// The original error detail should be displayed next to it.
func Summary(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrVideoRequired):
		return "Please upload a video before submitting a query."
	case errors.Is(err, ErrQueryRequired):
		return "Please enter a question about the video."
	case errors.Is(err, ErrMalformedResponse):
		return "The prediction service returned an unexpected response."
	case errors.Is(err, ErrPredictionFailed):
		return "Failed to process your query. Please try again."
	case errors.Is(err, ErrStorageUnavailable):
		return "Your result could not be saved to history."
	case errors.Is(err, ErrInvalidClipBounds):
		return "The selected segment cannot be played."
	case errors.Is(err, ErrHistoryNotFound):
		return "History entry not found."
	case errors.Is(err, ErrInvalidSortField), errors.Is(err, ErrInvalidSortDirection):
		return "Invalid history sort option."
	case errors.Is(err, context.DeadlineExceeded):
		return "The prediction service did not respond in time."
	default:
		return "Failed to process your query. Please try again."
	}
}
