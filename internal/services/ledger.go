package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/kaipee/csc-311-downloader/internal/models"
)

// RunRecorder keeps a record of each run.
type RunRecorder interface {
	Start(ctx context.Context, rec models.RunRecord) (string, error)
	Finish(ctx context.Context, runID string, rec models.RunRecord) error
}

type nopRecorder struct{}

func (nopRecorder) Start(context.Context, models.RunRecord) (string, error)  { return "", nil }
func (nopRecorder) Finish(context.Context, string, models.RunRecord) error { return nil }

// FirestoreRecorder writes run records into a Firestore collection.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRecorder creates a recorder writing into collection.
func NewFirestoreRecorder(client *firestore.Client, collection string) *FirestoreRecorder {
	return &FirestoreRecorder{client: client, collection: collection}
}

// Start creates the run document with status RUNNING and returns its id.
func (r *FirestoreRecorder) Start(ctx context.Context, rec models.RunRecord) (string, error) {
	rec.Status = models.RunStatusRunning
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	docRef, _, err := r.client.Collection(r.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create run document: %w", err)
	}
	return docRef.ID, nil
}

// Finish records the final status and counts of a run.
func (r *FirestoreRecorder) Finish(ctx context.Context, runID string, rec models.RunRecord) error {
	if runID == "" {
		return nil
	}
	updates := []firestore.Update{
		{Path: "status", Value: rec.Status},
		{Path: "resourceId", Value: rec.ResourceID},
		{Path: "resourceUrl", Value: rec.ResourceURL},
		{Path: "filesFiltered", Value: rec.FilesFiltered},
		{Path: "filesSkipped", Value: rec.FilesSkipped},
		{Path: "filesPublished", Value: rec.FilesPublished},
		{Path: "filesFailed", Value: rec.FilesFailed},
		{Path: "finishedAt", Value: time.Now()},
	}
	if rec.ErrorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: rec.ErrorDetails})
	}
	if _, err := r.client.Collection(r.collection).Doc(runID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run document %s: %w", runID, err)
	}
	return nil
}
