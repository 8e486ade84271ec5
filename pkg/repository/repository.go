package repository

import (
	"context"

	"github.com/m-mizutani/momentseek/pkg/model"
)

// Repository defines the interface for history persistence. Entries are
// append-only: putting an existing ID fails.
type Repository interface {
	// PutHistory saves a new history entry
	PutHistory(ctx context.Context, entry *model.HistoryEntry) error

	// GetHistory retrieves a history entry by ID. A missing entry wraps
	// model.ErrHistoryNotFound.
	GetHistory(ctx context.Context, id model.HistoryID) (*model.HistoryEntry, error)

	// ListHistoryByOwner retrieves all history entries of an owner in no
	// particular order
	ListHistoryByOwner(ctx context.Context, owner model.OwnerID) ([]*model.HistoryEntry, error)

	Close() error
}
