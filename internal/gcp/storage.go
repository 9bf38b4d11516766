package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ArchiveMirror keeps a copy of every downloaded archive in a GCS bucket.
type ArchiveMirror struct {
	bucket *storage.BucketHandle
	name   string
}

// NewArchiveMirror returns a mirror writing into the named bucket.
func NewArchiveMirror(client *storage.Client, bucket string) (*ArchiveMirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchiveMirror: bucket cannot be empty")
	}
	return &ArchiveMirror{bucket: client.Bucket(bucket), name: bucket}, nil
}

// Mirror uploads the local file to objectName only if the object doesn't already exist.
func (m *ArchiveMirror) Mirror(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open archive %s: %w", localPath, err)
	}
	defer f.Close()

	writer := m.bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/zip"

	if _, err := io.Copy(writer, f); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("SKIPPING: Archive already mirrored.", "bucket", m.name, "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("SKIPPING: Archive already mirrored.", "bucket", m.name, "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	slog.Info("Archive mirrored to GCS.", "bucket", m.name, "object", objectName)
	return nil
}

// isPreconditionFailed reports whether err is the 412 returned when the object exists.
func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
