package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kaipee/csc-311-downloader/internal/gcp"
	"github.com/kaipee/csc-311-downloader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The Firestore tests need an emulator:
//
//	gcloud emulators firestore start --host-port=localhost:8686
//	FIRESTORE_EMULATOR_HOST=localhost:8686 go test ./internal/services/
func TestFirestoreRecorder_StartFinish(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := gcp.NewFirestoreClient(ctx, "csc-311-test", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	collection := "runs-" + t.Name()
	recorder := NewFirestoreRecorder(client, collection)

	runID, err := recorder.Start(ctx, models.RunRecord{PackageID: DefaultPackageID, Trigger: "cli"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	snap, err := client.Collection(collection).Doc(runID).Get(ctx)
	require.NoError(t, err)
	var started models.RunRecord
	require.NoError(t, snap.DataTo(&started))
	assert.Equal(t, models.RunStatusRunning, started.Status)
	assert.Equal(t, DefaultPackageID, started.PackageID)
	assert.False(t, started.CreatedAt.IsZero())

	err = recorder.Finish(ctx, runID, models.RunRecord{
		Status:         models.RunStatusFailed,
		ResourceID:     "r0",
		ResourceURL:    "https://files.example.com/r0.zip",
		ErrorDetails:   "publish failed",
		FilesFiltered:  2,
		FilesSkipped:   1,
		FilesPublished: 1,
		FilesFailed:    1,
	})
	require.NoError(t, err)

	snap, err = client.Collection(collection).Doc(runID).Get(ctx)
	require.NoError(t, err)
	var finished models.RunRecord
	require.NoError(t, snap.DataTo(&finished))
	assert.Equal(t, models.RunStatusFailed, finished.Status)
	assert.Equal(t, "r0", finished.ResourceID)
	assert.Equal(t, "https://files.example.com/r0.zip", finished.ResourceURL)
	assert.Equal(t, "publish failed", finished.ErrorDetails)
	assert.Equal(t, 2, finished.FilesFiltered)
	assert.Equal(t, 1, finished.FilesSkipped)
	assert.Equal(t, 1, finished.FilesPublished)
	assert.Equal(t, 1, finished.FilesFailed)
	assert.Equal(t, "cli", finished.Trigger, "fields not in the update are kept")
	assert.WithinDuration(t, time.Now(), finished.FinishedAt, time.Minute)
}

func TestFirestoreRecorder_FinishWithoutRun(t *testing.T) {
	recorder := NewFirestoreRecorder(nil, "runs")
	assert.NoError(t, recorder.Finish(context.Background(), "", models.RunRecord{Status: models.RunStatusFailed}))
}
