package history

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/repository"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
)

// DefaultPageSize is used when a query does not specify a page size
const DefaultPageSize = 20

// Ledger is the append-only store of completed queries
type Ledger struct {
	repo            repository.Repository
	now             func() time.Time
	defaultPageSize int
}

// Option is a functional option for Ledger
type Option func(*Ledger)

// WithClock replaces time.Now for entry timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithDefaultPageSize sets the page size used when a query has none
func WithDefaultPageSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.defaultPageSize = n
		}
	}
}

// New creates a new Ledger instance
func New(repo repository.Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:            repo,
		now:             time.Now,
		defaultPageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewEntry builds a HistoryEntry for a completed query with a fresh ID
// and creation time.
func (l *Ledger) NewEntry(owner model.OwnerID, query, videoLabel string, aux *string, results model.ResultSet) *model.HistoryEntry {
	return &model.HistoryEntry{
		ID:               model.NewHistoryID(),
		CreatedAt:        l.now(),
		OwnerID:          owner,
		QueryText:        query,
		VideoLabel:       videoLabel,
		AuxDocumentLabel: aux,
		Results:          results,
	}
}

// Append persists a new entry. Store failures wrap model.ErrStorageUnavailable.
func (l *Ledger) Append(ctx context.Context, entry *model.HistoryEntry) error {
	if err := l.repo.PutHistory(ctx, entry); err != nil {
		return goerr.Wrap(model.ErrStorageUnavailable, "failed to append history",
			goerr.V("history_id", entry.ID),
			goerr.V("cause", err.Error()))
	}

	logging.From(ctx).Debug("history appended",
		"history_id", entry.ID,
		"results", len(entry.Results),
	)
	return nil
}

// Get returns an entry of owner. Entries of other owners are reported as
// not found.
func (l *Ledger) Get(ctx context.Context, owner model.OwnerID, id model.HistoryID) (*model.HistoryEntry, error) {
	entry, err := l.repo.GetHistory(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrHistoryNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to get history",
			goerr.V("history_id", id),
			goerr.V("cause", err.Error()))
	}

	if entry.OwnerID != owner {
		return nil, goerr.Wrap(model.ErrHistoryNotFound, "entry belongs to another owner",
			goerr.V("history_id", id))
	}
	return entry, nil
}

// Query returns one page of owner's entries.
//
// Entries are filtered by a case-insensitive substring match of SearchText
// on query text or video label, sorted by the requested field and
// direction with ties broken by ascending ID, and then paginated. Page is
// 1-based; values below 1 select the first page.
func (l *Ledger) Query(ctx context.Context, owner model.OwnerID, q model.HistoryQuery) (*model.HistoryPage, error) {
	if q.SortField == "" {
		q.SortField = model.SortByCreatedAt
	}
	if q.SortDirection == "" {
		q.SortDirection = model.SortDesc
	}
	if err := q.SortField.Validate(); err != nil {
		return nil, goerr.Wrap(err, "bad history query", goerr.V("sort_field", q.SortField))
	}
	if err := q.SortDirection.Validate(); err != nil {
		return nil, goerr.Wrap(err, "bad history query", goerr.V("sort_direction", q.SortDirection))
	}
	if q.PageSize <= 0 {
		q.PageSize = l.defaultPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}

	entries, err := l.repo.ListHistoryByOwner(ctx, owner)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to list history",
			goerr.V("owner_id", owner),
			goerr.V("cause", err.Error()))
	}

	filtered := Filter(entries, q.SearchText)
	Sort(filtered, q.SortField, q.SortDirection)

	total := len(filtered)
	totalPages := total / q.PageSize
	if total%q.PageSize != 0 {
		totalPages++
	}

	page := &model.HistoryPage{
		Entries:    []*model.HistoryEntry{},
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}

	// Page <= totalPages keeps (Page-1)*PageSize below total, so no overflow
	if q.Page > totalPages {
		return page, nil
	}
	start := (q.Page - 1) * q.PageSize
	end := start + min(q.PageSize, total-start)
	page.Entries = filtered[start:end]

	return page, nil
}

// BestOf returns the maximum-confidence segment of entry; ok is false for
// an entry without results.
func BestOf(entry *model.HistoryEntry) (model.Segment, bool) {
	return entry.Best()
}

// Filter keeps entries whose query text or video label contains text,
// ignoring case. Blank text keeps everything.
func Filter(entries []*model.HistoryEntry, text string) []*model.HistoryEntry {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return append([]*model.HistoryEntry(nil), entries...)
	}

	var out []*model.HistoryEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.QueryText), needle) ||
			strings.Contains(strings.ToLower(e.VideoLabel), needle) {
			out = append(out, e)
		}
	}
	return out
}

// Sort orders entries in place by field and direction; ties are broken by
// ascending ID regardless of direction.
func Sort(entries []*model.HistoryEntry, field model.SortField, dir model.SortDirection) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		c := compare(a, b, field)
		if c == 0 {
			return a.ID < b.ID
		}
		if dir == model.SortDesc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b *model.HistoryEntry, field model.SortField) int {
	switch field {
	case model.SortByQueryText:
		if c := strings.Compare(strings.ToLower(a.QueryText), strings.ToLower(b.QueryText)); c != 0 {
			return c
		}
		return strings.Compare(a.QueryText, b.QueryText)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
