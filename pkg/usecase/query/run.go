package query

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/metrics"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/moment"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
)

// Request is one question asked about one video
type Request struct {
	Owner            model.OwnerID
	Video            *model.Video
	Query            string
	AuxDocumentLabel *string
}

// Outcome is the answer to a Request. It is returned even when saving the
// history entry failed; PersistErr carries that failure.
type Outcome struct {
	Entry    *model.HistoryEntry
	Timeline *model.Timeline
	NoMatch  bool

	PersistErr error

	topN int
}

// Results returns the ranked segments
func (o *Outcome) Results() model.ResultSet {
	if o == nil || o.Entry == nil {
		return nil
	}
	return o.Entry.Results
}

// Best returns the highest confidence segment, false on no match
func (o *Outcome) Best() (model.Segment, bool) {
	return o.Results().Best()
}

// Top returns the first n ranked segments. n <= 0 uses the configured
// default.
func (o *Outcome) Top(n int) model.ResultSet {
	if n <= 0 {
		n = o.topN
	}
	return o.Results().Top(n)
}

// Run executes one query outside of any session
func (u *UseCase) Run(ctx context.Context, req Request) (*Outcome, error) {
	return u.run(ctx, req, nil)
}

// run executes the pipeline. superseded is checked once the prediction
// returns; a true result discards the response before anything is stored.
func (u *UseCase) run(ctx context.Context, req Request, superseded func() bool) (*Outcome, error) {
	if err := validate(req); err != nil {
		u.metrics.ObserveQuery(metrics.StatusInvalid)
		return nil, err
	}

	logger := logging.From(ctx).With("query", req.Query, "video", req.Video.Label)

	done := u.metrics.StartPrediction()
	pred, err := u.predictor.Predict(ctx, &model.PredictInput{Video: req.Video, Query: req.Query})
	done()

	if superseded != nil && superseded() {
		u.metrics.ObserveQuery(metrics.StatusSuperseded)
		logger.Debug("discard stale prediction response")
		return nil, goerr.Wrap(model.ErrRequestSuperseded, "newer request was issued")
	}
	if err != nil {
		u.metrics.ObserveQuery(metrics.StatusFailed)
		if errors.Is(err, model.ErrPredictionFailed) || errors.Is(err, model.ErrMalformedResponse) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to predict moments")
	}

	results, err := moment.Normalize(ctx, pred.Raw)
	if err != nil {
		u.metrics.ObserveQuery(metrics.StatusFailed)
		return nil, goerr.Wrap(err, "failed to normalize prediction",
			goerr.V("body", truncate(string(pred.Raw), 512)))
	}

	kept, err := u.policy.Apply(ctx, req.Query, results)
	if err != nil {
		u.metrics.ObserveQuery(metrics.StatusFailed)
		return nil, goerr.Wrap(err, "failed to apply result policy")
	}
	u.metrics.ObserveSegments(len(kept), len(results)-len(kept))

	entry := u.ledger.NewEntry(req.Owner, req.Query, req.Video.Label, req.AuxDocumentLabel, kept)
	u.archiveRaw(ctx, entry.ID, pred.Raw)

	timeline := u.Timeline(kept, req.Video.Duration)
	if timeline.Degraded {
		u.metrics.TimelineDegraded()
		logger.Debug("video duration unknown, timeline uses fallback", "fallback", timeline.Duration)
	}

	out := &Outcome{
		Entry:    entry,
		Timeline: timeline,
		NoMatch:  kept.Empty(),
		topN:     u.topN,
	}

	// An empty result is still recorded so history shows the question was asked
	if err := u.ledger.Append(ctx, entry); err != nil {
		out.PersistErr = err
		u.metrics.PersistFailed()
		logger.Warn("failed to save history entry", "error", err, "id", entry.ID)
	}

	if out.NoMatch {
		u.metrics.ObserveQuery(metrics.StatusNoMatch)
	} else {
		u.metrics.ObserveQuery(metrics.StatusMatched)
	}
	logger.Info("query completed",
		"id", entry.ID,
		"segments", len(kept),
		"no_match", out.NoMatch)

	return out, nil
}

func validate(req Request) error {
	if req.Video == nil || req.Video.Open == nil {
		return goerr.Wrap(model.ErrVideoRequired, "no video in request")
	}
	if strings.TrimSpace(req.Query) == "" {
		return goerr.Wrap(model.ErrQueryRequired, "query text is blank")
	}
	return nil
}

func (u *UseCase) archiveRaw(ctx context.Context, id model.HistoryID, raw []byte) {
	if u.archive == nil {
		return
	}

	key := "predictions/" + string(id) + ".json"
	if err := writeObject(ctx, u.archive, key, raw); err != nil {
		u.metrics.ArchiveFailed()
		logging.From(ctx).Warn("failed to archive raw prediction", "error", err, "key", key)
	}
}

func writeObject(ctx context.Context, st adapter.Storage, key string, data []byte) error {
	w, err := st.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("key", key))
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write object", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("key", key))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
