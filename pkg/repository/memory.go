package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
)

// Memory is an in-process Repository. Entries are copied on the way in
// and out so callers cannot mutate stored records.
type Memory struct {
	mu      sync.RWMutex
	entries map[model.HistoryID]*model.HistoryEntry
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[model.HistoryID]*model.HistoryEntry),
	}
}

func (m *Memory) PutHistory(ctx context.Context, entry *model.HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return goerr.New("history entry ID is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entry.ID]; ok {
		return goerr.New("history entry already exists", goerr.V("history_id", entry.ID))
	}
	m.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (m *Memory) GetHistory(ctx context.Context, id model.HistoryID) (*model.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such entry", goerr.V("history_id", id))
	}
	return cloneEntry(entry), nil
}

func (m *Memory) ListHistoryByOwner(ctx context.Context, owner model.OwnerID) ([]*model.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*model.HistoryEntry
	for _, entry := range m.entries {
		if entry.OwnerID == owner {
			entries = append(entries, cloneEntry(entry))
		}
	}
	return entries, nil
}

func (m *Memory) Close() error {
	return nil
}

func cloneEntry(e *model.HistoryEntry) *model.HistoryEntry {
	c := *e
	if e.Results != nil {
		c.Results = make(model.ResultSet, len(e.Results))
		copy(c.Results, e.Results)
	}
	if e.AuxDocumentLabel != nil {
		label := *e.AuxDocumentLabel
		c.AuxDocumentLabel = &label
	}
	return &c
}
