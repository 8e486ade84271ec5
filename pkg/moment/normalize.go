package moment

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
)

// PayloadField is the field of the prediction payload holding the triples.
const PayloadField = "predicted_moments"

// Normalize parses a raw prediction payload into a ranked ResultSet.
//
// The payload must be a JSON object whose "predicted_moments" field is an
// array of [start, end, confidence] triples. A missing or non-array field,
// or an element that is not a triple of numbers, fails with
// model.ErrMalformedResponse. Triples that cannot form a segment
// (start < 0, end <= start, non-finite values) are dropped. An empty array
// yields an empty, non-nil ResultSet and no error.
func Normalize(ctx context.Context, raw []byte) (model.ResultSet, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedResponse, "payload is not a JSON object",
			goerr.V("cause", err.Error()))
	}

	field, ok := payload[PayloadField]
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedResponse, "payload lacks field",
			goerr.V("field", PayloadField))
	}

	trimmed := bytes.TrimSpace(field)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, goerr.Wrap(model.ErrMalformedResponse, "field is not a list",
			goerr.V("field", PayloadField))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedResponse, "failed to decode list",
			goerr.V("cause", err.Error()))
	}

	triples := make([][3]float64, 0, len(items))
	for i, item := range items {
		var values []float64
		if err := json.Unmarshal(item, &values); err != nil || len(values) != 3 {
			return nil, goerr.Wrap(model.ErrMalformedResponse, "element is not a (start, end, confidence) triple",
				goerr.V("index", i),
				goerr.V("element", string(item)))
		}
		triples = append(triples, [3]float64{values[0], values[1], values[2]})
	}

	return FromTriples(ctx, triples), nil
}

// FromTriples converts (start, end, confidence) triples into a ranked
// ResultSet. Confidence is not rescaled.
func FromTriples(ctx context.Context, triples [][3]float64) model.ResultSet {
	segments := make([]model.Segment, 0, len(triples))
	dropped := 0
	for _, tr := range triples {
		s := model.Segment{StartTime: tr[0], EndTime: tr[1], Confidence: tr[2]}
		if !s.Valid() {
			dropped++
			continue
		}
		segments = append(segments, s)
	}

	if dropped > 0 {
		logging.From(ctx).Warn("dropped invalid segments from prediction",
			"dropped", dropped,
			"kept", len(segments),
		)
	}

	return model.Ranked(segments)
}
