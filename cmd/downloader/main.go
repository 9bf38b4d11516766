// Command downloader refreshes the 311 coyote sighting sheets once and exits.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kaipee/csc-311-downloader/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	pipeline, err := services.NewPipeline(ctx)
	if err != nil {
		slog.Error("Critical error during initialization", "error", err)
		return 1
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			slog.Warn("Failed to close clients", "error", err)
		}
	}()

	// Per-file failures are in the report and do not change the exit status.
	if _, err := pipeline.Run(ctx, "cli"); err != nil {
		return 1
	}
	return 0
}
