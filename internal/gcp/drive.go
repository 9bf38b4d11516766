package gcp

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// SpreadsheetMimeType makes Drive convert uploaded tables into Google Sheets.
const SpreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// DriveStore reads and writes documents in Google Drive folders.
type DriveStore struct {
	service *drive.Service
}

// NewDriveStore creates a Drive v3 client from the given options.
func NewDriveStore(ctx context.Context, opts ...option.ClientOption) (*DriveStore, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive.NewService: %w", err)
	}
	return &DriveStore{service: service}, nil
}

// DriveOptions returns the client options for a service account key.
func DriveOptions(account *ServiceAccount) []option.ClientOption {
	return []option.ClientOption{
		option.WithCredentialsJSON(account.JSON),
		option.WithScopes(drive.DriveScope),
	}
}

// FindByName returns the id of the first non-trashed file called name in the folder.
func (s *DriveStore) FindByName(ctx context.Context, folderID, name string) (string, bool, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", escapeQuery(folderID), escapeQuery(name))
	resp, err := s.service.Files.List().
		Q(query).
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, fmt.Errorf("failed to query folder %s for %q: %w", folderID, name, err)
	}
	if len(resp.Files) == 0 {
		return "", false, nil
	}
	return resp.Files[0].Id, true, nil
}

// Create uploads content as a new spreadsheet in the folder and returns its id.
func (s *DriveStore) Create(ctx context.Context, folderID, name string, content io.Reader, contentType string) (string, error) {
	file := &drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: SpreadsheetMimeType,
	}
	created, err := s.service.Files.Create(file).
		Media(content, googleapi.ContentType(contentType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create %q in folder %s: %w", name, folderID, err)
	}
	return created.Id, nil
}

// Update replaces the content of an existing file.
func (s *DriveStore) Update(ctx context.Context, fileID string, content io.Reader, contentType string) error {
	_, err := s.service.Files.Update(fileID, &drive.File{}).
		Media(content, googleapi.ContentType(contentType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update file %s: %w", fileID, err)
	}
	return nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeQuery escapes a value for use inside a quoted Drive query string.
func escapeQuery(v string) string {
	return queryEscaper.Replace(v)
}
