package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"

	_ "modernc.org/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS history (
		id                 TEXT PRIMARY KEY,
		created_at         INTEGER NOT NULL,
		owner_id           TEXT NOT NULL,
		query_text         TEXT NOT NULL,
		video_label        TEXT NOT NULL,
		aux_document_label TEXT,
		results            TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_owner ON history(owner_id, created_at)`,
}

// SQLite implements Repository on a local SQLite database file
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at path. ":memory:" is accepted.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "failed to set pragma", goerr.V("pragma", pragma))
		}
	}

	for _, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "failed to migrate history schema", goerr.V("path", path))
		}
	}

	return &SQLite{db: db}, nil
}

func (r *SQLite) PutHistory(ctx context.Context, entry *model.HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return goerr.New("history entry ID is empty")
	}

	results := entry.Results
	if results == nil {
		results = model.ResultSet{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal results", goerr.V("history_id", entry.ID))
	}

	var aux sql.NullString
	if entry.AuxDocumentLabel != nil {
		aux = sql.NullString{String: *entry.AuxDocumentLabel, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO history (id, created_at, owner_id, query_text, video_label, aux_document_label, results)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ID),
		entry.CreatedAt.UnixNano(),
		string(entry.OwnerID),
		entry.QueryText,
		entry.VideoLabel,
		aux,
		string(raw),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert history", goerr.V("history_id", entry.ID))
	}
	return nil
}

func (r *SQLite) GetHistory(ctx context.Context, id model.HistoryID) (*model.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, owner_id, query_text, video_label, aux_document_label, results
		 FROM history WHERE id = ?`, string(id))

	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such row", goerr.V("history_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history", goerr.V("history_id", id))
	}
	return entry, nil
}

func (r *SQLite) ListHistoryByOwner(ctx context.Context, owner model.OwnerID) ([]*model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, owner_id, query_text, video_label, aux_document_label, results
		 FROM history WHERE owner_id = ?`, string(owner))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query history", goerr.V("owner_id", owner))
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan history", goerr.V("owner_id", owner))
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate history", goerr.V("owner_id", owner))
	}

	return entries, nil
}

func (r *SQLite) Close() error {
	if err := r.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite database")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (*model.HistoryEntry, error) {
	var (
		id, owner, query, video, results string
		createdAt                        int64
		aux                              sql.NullString
	)
	if err := row.Scan(&id, &createdAt, &owner, &query, &video, &aux, &results); err != nil {
		return nil, err
	}

	entry := &model.HistoryEntry{
		ID:         model.HistoryID(id),
		CreatedAt:  time.Unix(0, createdAt).UTC(),
		OwnerID:    model.OwnerID(owner),
		QueryText:  query,
		VideoLabel: video,
	}
	if aux.Valid {
		label := aux.String
		entry.AuxDocumentLabel = &label
	}
	if err := json.Unmarshal([]byte(results), &entry.Results); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal results", goerr.V("history_id", id))
	}
	return entry, nil
}
