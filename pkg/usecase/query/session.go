package query

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
)

// Session serializes the queries of one presentation session. Only the
// response to the most recent Submit is accepted; older responses fail
// with model.ErrRequestSuperseded and leave the session untouched.
type Session struct {
	uc  *UseCase
	seq atomic.Uint64

	mu     sync.Mutex
	latest *Outcome
}

func (u *UseCase) NewSession() *Session {
	return &Session{uc: u}
}

// Submit runs req as the newest request of the session.
//
// A response overtaken by a newer Submit fails with
// model.ErrRequestSuperseded. When the newer Submit started only after the
// entry was saved, the saved outcome is returned together with that error
// so the caller can still refer to the persisted entry; Latest is not
// updated in either case.
func (s *Session) Submit(ctx context.Context, req Request) (*Outcome, error) {
	seq := s.seq.Add(1)
	stale := func() bool { return s.seq.Load() != seq }

	out, err := s.uc.run(ctx, req, stale)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stale() {
		return out, goerr.Wrap(model.ErrRequestSuperseded, "newer request started while saving",
			goerr.V("history_id", out.Entry.ID))
	}
	s.latest = out
	return out, nil
}

// Latest returns the outcome of the most recent completed request
func (s *Session) Latest() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// UpdateDuration recomputes the latest timeline once the media clock knows
// the real duration. It returns false when there is no outcome yet.
func (s *Session) UpdateDuration(duration float64) (*model.Timeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, false
	}

	updated := *s.latest
	updated.Timeline = s.uc.Timeline(updated.Results(), duration)
	s.latest = &updated
	return updated.Timeline, true
}
