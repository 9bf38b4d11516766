package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaipee/csc-311-downloader/internal/gcp"
)

// DocumentStore is a folder-based document store such as Google Drive.
type DocumentStore interface {
	FindByName(ctx context.Context, folderID, name string) (string, bool, error)
	Create(ctx context.Context, folderID, name string, content io.Reader, contentType string) (string, error)
	Update(ctx context.Context, fileID string, content io.Reader, contentType string) error
}

// StoreFactory authenticates with a service account and returns a store.
type StoreFactory func(ctx context.Context, account *gcp.ServiceAccount) (DocumentStore, error)

// DriveStoreFactory builds a Google Drive store.
func DriveStoreFactory(ctx context.Context, account *gcp.ServiceAccount) (DocumentStore, error) {
	return gcp.NewDriveStore(ctx, gcp.DriveOptions(account)...)
}

// PublishOutcome is the terminal state of publishing one file.
type PublishOutcome string

const (
	PublishCreated      PublishOutcome = "created"
	PublishUpdated      PublishOutcome = "updated"
	PublishAuthFailed   PublishOutcome = "auth_failed"
	PublishQueryFailed  PublishOutcome = "query_failed"
	PublishUploadFailed PublishOutcome = "upload_failed"
)

// PublishResult reports what happened to one file.
type PublishResult struct {
	Path       string
	Name       string
	DocumentID string
	Outcome    PublishOutcome
	Err        error
}

// Failed reports whether the file was not published.
func (r PublishResult) Failed() bool {
	return r.Outcome != PublishCreated && r.Outcome != PublishUpdated
}

// DocumentPublisher upserts local tables as spreadsheets in a folder, keyed
// on the document name.
type DocumentPublisher struct {
	folderID    string
	credentials gcp.CredentialSource
	newStore    StoreFactory
}

// NewDocumentPublisher creates a publisher. A nil newStore uses DriveStoreFactory.
func NewDocumentPublisher(folderID string, credentials gcp.CredentialSource, newStore StoreFactory) *DocumentPublisher {
	if newStore == nil {
		newStore = DriveStoreFactory
	}
	return &DocumentPublisher{folderID: folderID, credentials: credentials, newStore: newStore}
}

// DocumentName is the name a file is published under: its base name without extension.
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func contentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return "text/tab-separated-values"
	}
	return "text/csv"
}

// PublishAll publishes each file in order. A failure only affects its own file.
func (p *DocumentPublisher) PublishAll(ctx context.Context, paths []string) []PublishResult {
	results := make([]PublishResult, 0, len(paths))
	for _, path := range paths {
		results = append(results, p.Publish(ctx, path))
	}
	return results
}

// Publish authenticates, then updates the document named after path if the
// folder holds one, or creates it otherwise.
func (p *DocumentPublisher) Publish(ctx context.Context, path string) PublishResult {
	res := PublishResult{Path: path, Name: DocumentName(path)}
	logCtx := slog.With("file", path, "documentName", res.Name, "folderId", p.folderID)

	account, err := p.credentials.Load()
	if err != nil {
		return p.fail(logCtx, res, PublishAuthFailed, "Error loading credentials.", err)
	}
	logCtx.Info("Using service account credentials.", "source", account.Source)

	store, err := p.newStore(ctx, account)
	if err != nil {
		return p.fail(logCtx, res, PublishAuthFailed, "Failed to create document store client.", err)
	}

	existingID, found, err := store.FindByName(ctx, p.folderID, res.Name)
	if err != nil {
		return p.fail(logCtx, res, PublishQueryFailed, "Failed to query destination folder.", err)
	}

	content, err := os.Open(path)
	if err != nil {
		return p.fail(logCtx, res, PublishUploadFailed, "Failed to open filtered file.", err)
	}
	defer content.Close()

	if found {
		if err := store.Update(ctx, existingID, content, contentType(path)); err != nil {
			return p.fail(logCtx, res, PublishUploadFailed, "Failed to update existing document.", err)
		}
		res.DocumentID, res.Outcome = existingID, PublishUpdated
		logCtx.Info("Updated existing spreadsheet.", "documentId", existingID)
		return res
	}

	id, err := store.Create(ctx, p.folderID, res.Name, content, contentType(path))
	if err != nil {
		return p.fail(logCtx, res, PublishUploadFailed, "Failed to create spreadsheet.", err)
	}
	res.DocumentID, res.Outcome = id, PublishCreated
	logCtx.Info("Uploaded file as a new spreadsheet.", "documentId", id)
	return res
}

func (p *DocumentPublisher) fail(logCtx *slog.Logger, res PublishResult, outcome PublishOutcome, message string, err error) PublishResult {
	logCtx.Error(message, "error", err)
	res.Outcome = outcome
	res.Err = fmt.Errorf("%s: %w", res.Path, err)
	return res
}
