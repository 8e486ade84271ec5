package model

import (
	"time"

	"github.com/google/uuid"
)

type HistoryID string

// NewHistoryID generates a new unique HistoryID
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

// OwnerID is an opaque identity supplied by the authentication layer.
type OwnerID string

// HistoryEntry is a persisted record of one completed query. It is created
// once when the query completes and never updated afterwards.
type HistoryEntry struct {
	ID        HistoryID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	OwnerID   OwnerID   `json:"owner_id"`
	QueryText string    `json:"query_text"`

	VideoLabel       string  `json:"video_label"`
	AuxDocumentLabel *string `json:"aux_document_label,omitempty"`

	Results ResultSet `json:"results"`
}

// Best returns the maximum-confidence segment of the entry.
func (e *HistoryEntry) Best() (Segment, bool) {
	if e == nil {
		return Segment{}, false
	}
	return e.Results.Best()
}

type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByQueryText SortField = "queryText"
)

// Validate checks if the sort field is supported
func (f SortField) Validate() error {
	switch f {
	case SortByCreatedAt, SortByQueryText:
		return nil
	default:
		return ErrInvalidSortField
	}
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Validate checks if the sort direction is supported
func (d SortDirection) Validate() error {
	switch d {
	case SortAsc, SortDesc:
		return nil
	default:
		return ErrInvalidSortDirection
	}
}

// HistoryQuery selects a page of one owner's history.
type HistoryQuery struct {
	SortField     SortField
	SortDirection SortDirection
	Page          int // 1-based
	PageSize      int
	SearchText    string
}

// HistoryPage is one page of history entries.
type HistoryPage struct {
	Entries    []*HistoryEntry `json:"entries"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalCount int             `json:"total_count"`
	TotalPages int             `json:"total_pages"`
}
