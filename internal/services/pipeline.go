package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/kaipee/csc-311-downloader/internal/gcp"
	"github.com/kaipee/csc-311-downloader/internal/models"
)

// Dependencies are the collaborators a Pipeline is assembled from.
// Zero values select the production defaults.
type Dependencies struct {
	HTTPClient   *http.Client
	Selector     ResourceSelector
	StoreFactory StoreFactory
	Recorder     RunRecorder
	Mirror       ArchiveMirror
	LookupEnv    func(string) (string, bool)
}

// RunReport summarises one run.
type RunReport struct {
	Download  *Download
	Filtered  []FilterResult
	Published []PublishResult
}

// Record converts the report into the counts stored by the run ledger.
func (r *RunReport) Record() models.RunRecord {
	var rec models.RunRecord
	if r.Download != nil {
		rec.ResourceID = r.Download.Resource.ID
		rec.ResourceURL = r.Download.URL
	}
	for _, f := range r.Filtered {
		if f.Outcome == OutcomeFiltered {
			rec.FilesFiltered++
		} else {
			rec.FilesSkipped++
		}
	}
	for _, p := range r.Published {
		if p.Failed() {
			rec.FilesFailed++
		} else {
			rec.FilesPublished++
		}
	}
	return rec
}

// Pipeline runs catalog lookup, download, filtering and publishing, in that order.
type Pipeline struct {
	config    PipelineConfig
	catalog   *CatalogClient
	fetcher   *ArchiveFetcher
	filter    *TableFilter
	publisher *DocumentPublisher
	recorder  RunRecorder
	closers   []func() error
}

// NewPipeline loads configuration from the environment and creates the
// optional Firestore and Storage clients it asks for.
func NewPipeline(ctx context.Context) (*Pipeline, error) {
	config, err := LoadPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var deps Dependencies
	var closers []func() error
	if config.ProjectID != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.FirestoreDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		deps.Recorder = NewFirestoreRecorder(firestoreClient, config.RunsCollection)
		closers = append(closers, firestoreClient.Close)
	}
	if config.ArchiveBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		mirror, err := gcp.NewArchiveMirror(storageClient, config.ArchiveBucket)
		if err != nil {
			return nil, err
		}
		deps.Mirror = mirror
		closers = append(closers, storageClient.Close)
	}

	p := NewPipelineWith(*config, deps)
	p.closers = closers
	slog.Info("Pipeline initialized.",
		"packageId", config.PackageID,
		"folderId", config.FolderID,
		"ledger", config.ProjectID != "",
		"mirror", config.ArchiveBucket != "")
	return p, nil
}

// NewPipelineWith assembles a pipeline from an explicit configuration.
func NewPipelineWith(config PipelineConfig, deps Dependencies) *Pipeline {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	credentials := gcp.CredentialSource{
		FilePath:  config.CredentialsFile,
		EnvVar:    config.CredentialsEnv,
		LookupEnv: deps.LookupEnv,
	}
	return &Pipeline{
		config:    config,
		catalog:   NewCatalogClient(config.CatalogURL, deps.HTTPClient, deps.Selector),
		fetcher:   NewArchiveFetcher(deps.HTTPClient, config.ArchivePath(), config.ExtractPath(), deps.Mirror),
		filter:    NewTableFilter(config.Predicates()...),
		publisher: NewDocumentPublisher(config.FolderID, credentials, deps.StoreFactory),
		recorder:  recorder,
	}
}

// Close releases the clients created by NewPipeline.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run executes one refresh. It returns an error only when the catalog lookup,
// the download or the extraction fails; per-file failures are in the report.
func (p *Pipeline) Run(ctx context.Context, trigger string) (*RunReport, error) {
	logCtx := slog.With("packageId", p.config.PackageID, "trigger", trigger)
	logCtx.Info("Starting refresh.")
	report := &RunReport{}

	runID, err := p.recorder.Start(ctx, models.RunRecord{PackageID: p.config.PackageID, Trigger: trigger, CreatedAt: time.Now()})
	if err != nil {
		logCtx.Error("Failed to record run start. Continuing without ledger.", "error", err)
	} else if runID != "" {
		logCtx = logCtx.With("runId", runID)
	}

	download, err := p.catalog.ResolveDownload(ctx, p.config.PackageID)
	if err != nil {
		return report, p.handleError(ctx, logCtx, runID, report, "failed to resolve download", err)
	}
	report.Download = download

	if _, err := p.fetcher.Fetch(ctx, download.URL, p.mirrorName(download)); err != nil {
		return report, p.handleError(ctx, logCtx, runID, report, "failed to fetch archive", err)
	}

	filtered, err := p.filter.FilterDir(ctx, p.config.ExtractPath())
	report.Filtered = filtered
	if err != nil {
		return report, p.handleError(ctx, logCtx, runID, report, "failed to filter tables", err)
	}

	var toPublish []string
	for _, f := range filtered {
		if f.Outcome == OutcomeFiltered {
			toPublish = append(toPublish, f.Path)
		}
	}
	report.Published = p.publisher.PublishAll(ctx, toPublish)

	rec := report.Record()
	rec.Status = models.RunStatusSucceeded
	if err := p.recorder.Finish(ctx, runID, rec); err != nil {
		logCtx.Error("CRITICAL: Failed to record run completion.", "error", err)
	}
	logCtx.Info("Refresh complete.",
		"filesFiltered", rec.FilesFiltered,
		"filesSkipped", rec.FilesSkipped,
		"filesPublished", rec.FilesPublished,
		"filesFailed", rec.FilesFailed)
	return report, nil
}

// mirrorName is the GCS object name the archive is mirrored under.
func (p *Pipeline) mirrorName(d *Download) string {
	return fmt.Sprintf("%s/%s/%s.zip", d.PackageID, time.Now().UTC().Format("2006-01-02"), d.Resource.ID)
}

func (p *Pipeline) handleError(ctx context.Context, logCtx *slog.Logger, runID string, report *RunReport, message string, originalErr error) error {
	fullError := fmt.Errorf("%s: %w", message, originalErr)
	logCtx.Error(message, "error", originalErr)

	rec := report.Record()
	rec.Status = models.RunStatusFailed
	rec.ErrorDetails = fullError.Error()
	if err := p.recorder.Finish(ctx, runID, rec); err != nil {
		logCtx.Error("CRITICAL: Failed to record run failure.", "updateError", err)
	}
	return fullError
}
