package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/kaipee/csc-311-downloader/internal/gcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceAccount = `{"type":"service_account","client_email":"sync@example.iam.gserviceaccount.com"}`

type storedDoc struct {
	ID          string
	Folder      string
	Content     string
	ContentType string
}

// fakeStore is an in-memory DocumentStore keyed by name.
type fakeStore struct {
	docs     map[string]*storedDoc
	calls    []string
	queryErr error
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]*storedDoc{}}
}

func (s *fakeStore) FindByName(_ context.Context, folderID, name string) (string, bool, error) {
	s.calls = append(s.calls, "find "+name)
	if s.queryErr != nil {
		return "", false, s.queryErr
	}
	d, ok := s.docs[name]
	if !ok || d.Folder != folderID {
		return "", false, nil
	}
	return d.ID, true, nil
}

func (s *fakeStore) Create(_ context.Context, folderID, name string, content io.Reader, contentType string) (string, error) {
	s.calls = append(s.calls, "create "+name)
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	s.nextID++
	id := "new-" + strconv.Itoa(s.nextID)
	s.docs[name] = &storedDoc{ID: id, Folder: folderID, Content: string(data), ContentType: contentType}
	return id, nil
}

func (s *fakeStore) Update(_ context.Context, fileID string, content io.Reader, contentType string) error {
	s.calls = append(s.calls, "update "+fileID)
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	for _, d := range s.docs {
		if d.ID == fileID {
			d.Content, d.ContentType = string(data), contentType
			return nil
		}
	}
	return errors.New("no such file")
}

func (s *fakeStore) factory(factoryCalls *int) StoreFactory {
	return func(context.Context, *gcp.ServiceAccount) (DocumentStore, error) {
		if factoryCalls != nil {
			*factoryCalls++
		}
		return s, nil
	}
}

func keyFileCredentials(t *testing.T) gcp.CredentialSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services_account.json")
	require.NoError(t, os.WriteFile(path, []byte(testServiceAccount), 0o600))
	return gcp.CredentialSource{FilePath: path, EnvVar: "GOOGLE_SECRET", LookupEnv: envLookup(nil)}
}

func envLookup(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "report", DocumentName("/tmp/311_data/report.csv"))
	assert.Equal(t, "SR2024.v2", DocumentName("SR2024.v2.csv"))
	assert.Equal(t, "plain", DocumentName("plain"))
}

func TestDocumentPublisher_UpdatesExistingDocument(t *testing.T) {
	store := newFakeStore()
	store.docs["report"] = &storedDoc{ID: "doc-1", Folder: "folder-9", Content: "stale"}
	path := writeTable(t, t.TempDir(), "report.csv", "Ward\nA\n")

	res := NewDocumentPublisher("folder-9", keyFileCredentials(t), store.factory(nil)).Publish(context.Background(), path)
	require.NoError(t, res.Err)
	assert.Equal(t, PublishUpdated, res.Outcome)
	assert.Equal(t, "doc-1", res.DocumentID)

	assert.Len(t, store.docs, 1, "no duplicate document is created")
	assert.Equal(t, "Ward\nA\n", store.docs["report"].Content)
	assert.Equal(t, "text/csv", store.docs["report"].ContentType)
	assert.Equal(t, []string{"find report", "update doc-1"}, store.calls)
}

func TestDocumentPublisher_CreatesMissingDocument(t *testing.T) {
	store := newFakeStore()
	store.docs["new"] = &storedDoc{ID: "elsewhere", Folder: "other-folder"}
	path := writeTable(t, t.TempDir(), "new.csv", "Ward\nB\n")

	res := NewDocumentPublisher("folder-9", keyFileCredentials(t), store.factory(nil)).Publish(context.Background(), path)
	require.NoError(t, res.Err)
	assert.Equal(t, PublishCreated, res.Outcome)
	assert.Equal(t, []string{"find new", "create new"}, store.calls)
	assert.Equal(t, "folder-9", store.docs["new"].Folder)
	assert.Equal(t, "Ward\nB\n", store.docs["new"].Content)
}

func TestDocumentPublisher_NoCredentials(t *testing.T) {
	store := newFakeStore()
	var factoryCalls int
	creds := gcp.CredentialSource{
		FilePath:  filepath.Join(t.TempDir(), "services_account.json"),
		EnvVar:    "GOOGLE_SECRET",
		LookupEnv: envLookup(nil),
	}
	path := writeTable(t, t.TempDir(), "report.csv", "Ward\nA\n")

	res := NewDocumentPublisher("folder-9", creds, store.factory(&factoryCalls)).Publish(context.Background(), path)
	assert.Equal(t, PublishAuthFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, gcp.ErrNoCredentials)
	assert.True(t, res.Failed())
	assert.Zero(t, factoryCalls)
	assert.Empty(t, store.calls, "no API call is made")
}

func TestDocumentPublisher_FactoryError(t *testing.T) {
	failing := func(context.Context, *gcp.ServiceAccount) (DocumentStore, error) {
		return nil, errors.New("invalid grant")
	}
	path := writeTable(t, t.TempDir(), "report.csv", "Ward\n")

	res := NewDocumentPublisher("folder-9", keyFileCredentials(t), failing).Publish(context.Background(), path)
	assert.Equal(t, PublishAuthFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "invalid grant")
}

func TestDocumentPublisher_PublishAllIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	store.queryErr = errors.New("rate limited")
	paths := []string{
		writeTable(t, dir, "a.csv", "Ward\n"),
		writeTable(t, dir, "b.tsv", "Ward\n"),
	}

	results := NewDocumentPublisher("folder-9", keyFileCredentials(t), store.factory(nil)).PublishAll(context.Background(), paths)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, PublishQueryFailed, r.Outcome)
	}
	assert.Equal(t, []string{"find a", "find b"}, store.calls)
}

func TestDocumentPublisher_TabSeparatedContentType(t *testing.T) {
	store := newFakeStore()
	path := writeTable(t, t.TempDir(), "SR.tsv", "Ward\tService Request Type\n")

	res := NewDocumentPublisher("folder-9", keyFileCredentials(t), store.factory(nil)).Publish(context.Background(), path)
	require.NoError(t, res.Err)
	assert.Equal(t, "text/tab-separated-values", store.docs["SR"].ContentType)
}
