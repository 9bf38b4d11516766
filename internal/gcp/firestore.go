package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
)

// ErrNoProject is returned when the run ledger is requested without a project.
var ErrNoProject = errors.New("PROJECT_ID is required for the run ledger")

// NewFirestoreClient opens the run ledger database. An empty databaseID
// selects the project's default database.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, ErrNoProject
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to open firestore database %s/%s: %w", projectID, databaseID, err)
	}
	slog.Info("Run ledger connected.", "projectId", projectID, "databaseId", databaseID)
	return client, nil
}
