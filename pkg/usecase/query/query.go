package query

import (
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/metrics"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/moment"
	"github.com/m-mizutani/momentseek/pkg/policy"
	"github.com/m-mizutani/momentseek/pkg/usecase/history"
)

// DefaultTopN is the number of predictions listed next to the timeline
const DefaultTopN = 3

// UseCase runs a question against a video and records the answer
type UseCase struct {
	predictor adapter.Predictor
	ledger    *history.Ledger
	archive   adapter.Storage
	policy    *policy.Policy
	metrics   *metrics.Metrics

	resolution       int
	fallbackDuration float64
	topN             int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithArchive stores every raw prediction payload under predictions/<id>.json
func WithArchive(st adapter.Storage) Option {
	return func(u *UseCase) {
		u.archive = st
	}
}

func WithPolicy(p *policy.Policy) Option {
	return func(u *UseCase) {
		u.policy = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(u *UseCase) {
		u.metrics = m
	}
}

// WithResolution sets the number of timeline samples
func WithResolution(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.resolution = n
		}
	}
}

// WithFallbackDuration sets the duration used while the real one is unknown
func WithFallbackDuration(d float64) Option {
	return func(u *UseCase) {
		if d > 0 {
			u.fallbackDuration = d
		}
	}
}

func WithTopN(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.topN = n
		}
	}
}

// New creates a query UseCase
func New(predictor adapter.Predictor, ledger *history.Ledger, opts ...Option) *UseCase {
	u := &UseCase{
		predictor:        predictor,
		ledger:           ledger,
		resolution:       moment.DefaultResolution,
		fallbackDuration: moment.DefaultFallbackDuration,
		topN:             DefaultTopN,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Timeline synthesizes the confidence curve with the configured resolution
// and fallback duration.
func (u *UseCase) Timeline(rs model.ResultSet, duration float64) *model.Timeline {
	return moment.Synthesize(rs, duration,
		moment.WithResolution(u.resolution),
		moment.WithFallbackDuration(u.fallbackDuration))
}
