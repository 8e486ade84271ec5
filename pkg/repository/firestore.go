package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const collectionHistory = "history"

// Firestore implements Repository on a Firestore database
type Firestore struct {
	client *firestore.Client
}

// historyDoc is the stored form of model.HistoryEntry
type historyDoc struct {
	ID               string          `firestore:"id"`
	CreatedAt        time.Time       `firestore:"created_at"`
	OwnerID          string          `firestore:"owner_id"`
	QueryText        string          `firestore:"query_text"`
	VideoLabel       string          `firestore:"video_label"`
	AuxDocumentLabel *string         `firestore:"aux_document_label"`
	Results          []model.Segment `firestore:"results"`
}

// NewFirestore creates a Firestore repository for the given project and database
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) PutHistory(ctx context.Context, entry *model.HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return goerr.New("history entry ID is empty")
	}

	doc := historyDoc{
		ID:               string(entry.ID),
		CreatedAt:        entry.CreatedAt,
		OwnerID:          string(entry.OwnerID),
		QueryText:        entry.QueryText,
		VideoLabel:       entry.VideoLabel,
		AuxDocumentLabel: entry.AuxDocumentLabel,
		Results:          entry.Results,
	}
	if doc.Results == nil {
		doc.Results = []model.Segment{}
	}

	// Create fails when the document exists, which keeps entries append-only
	if _, err := r.client.Collection(collectionHistory).Doc(doc.ID).Create(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to create history document", goerr.V("history_id", entry.ID))
	}
	return nil
}

func (r *Firestore) GetHistory(ctx context.Context, id model.HistoryID) (*model.HistoryEntry, error) {
	snap, err := r.client.Collection(collectionHistory).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such document", goerr.V("history_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history document", goerr.V("history_id", id))
	}

	var doc historyDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode history document", goerr.V("history_id", id))
	}
	return doc.toModel(), nil
}

func (r *Firestore) ListHistoryByOwner(ctx context.Context, owner model.OwnerID) ([]*model.HistoryEntry, error) {
	iter := r.client.Collection(collectionHistory).
		Where("owner_id", "==", string(owner)).
		Documents(ctx)
	defer iter.Stop()

	var entries []*model.HistoryEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate history documents", goerr.V("owner_id", owner))
		}

		var doc historyDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode history document", goerr.V("doc_id", snap.Ref.ID))
		}
		entries = append(entries, doc.toModel())
	}

	return entries, nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func (d *historyDoc) toModel() *model.HistoryEntry {
	return &model.HistoryEntry{
		ID:               model.HistoryID(d.ID),
		CreatedAt:        d.CreatedAt,
		OwnerID:          model.OwnerID(d.OwnerID),
		QueryText:        d.QueryText,
		VideoLabel:       d.VideoLabel,
		AuxDocumentLabel: d.AuxDocumentLabel,
		Results:          model.ResultSet(d.Results),
	}
}
