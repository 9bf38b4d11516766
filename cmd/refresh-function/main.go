// Command refresh-function serves the refresh as a CloudEvent function, for
// a scheduler publishing to Pub/Sub.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/kaipee/csc-311-downloader/internal/gcp"
	"github.com/kaipee/csc-311-downloader/internal/models"
	"github.com/kaipee/csc-311-downloader/internal/services"
)

var (
	pipelineInstance *services.Pipeline
	once             sync.Once
	initErr          error
	// Runs share the extraction directory, so they must not overlap.
	runMu sync.Mutex
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Only /tmp is writable on Cloud Functions.
	if _, ok := os.LookupEnv("WORK_DIR"); !ok {
		os.Setenv("WORK_DIR", os.TempDir())
	}

	functions.CloudEvent("RefreshServiceRequests", refreshServiceRequests)
}

func main() {
	port := gcp.ProcessEnv.String("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

// refreshServiceRequests runs one refresh per scheduler event.
func refreshServiceRequests(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		pipelineInstance, initErr = services.NewPipeline(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var msg models.SchedulerMessage
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Warn("Event data is not a Pub/Sub message. Running anyway.", "error", err, "eventId", e.ID())
	}
	slog.Info("Received scheduler event.", "eventId", e.ID(), "source", e.Source(), "messageId", msg.Message.MessageID)

	runMu.Lock()
	defer runMu.Unlock()

	// Returning the error marks the invocation as failed; per-file failures don't.
	if _, err := pipelineInstance.Run(ctx, e.ID()); err != nil {
		return err
	}
	return nil
}
