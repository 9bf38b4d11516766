package services

import (
	"fmt"
	"path/filepath"

	"github.com/kaipee/csc-311-downloader/internal/gcp"
)

// Defaults for the Toronto 311 customer-initiated service request feed.
const (
	DefaultCatalogURL      = "https://ckan0.cf.opendata.inter.prod-toronto.ca"
	DefaultPackageID       = "311-service-requests-customer-initiated"
	DefaultArchiveFile     = "311_data.zip"
	DefaultExtractDir      = "311_data"
	DefaultWard            = "Spadina-Fort York (10)"
	DefaultRequestType     = "Coyote"
	DefaultFolderID        = "1o5nGvVRB918RqwOzFSkdH0FCj708nKZ1"
	DefaultCredentialsFile = "services_account.json"
	DefaultCredentialsEnv  = "GOOGLE_SECRET"
	DefaultRunsCollection  = "runs"

	WardColumn        = "Ward"
	RequestTypeColumn = "Service Request Type"
)

// PipelineConfig holds all configuration for one refresh run.
type PipelineConfig struct {
	CatalogURL string
	PackageID  string

	// ArchivePath and ExtractDir are resolved against WorkDir.
	WorkDir     string
	ArchiveFile string
	ExtractDir  string

	Ward        string
	RequestType string

	FolderID        string
	CredentialsFile string
	CredentialsEnv  string

	// Optional. Empty disables the run ledger.
	ProjectID         string
	FirestoreDatabase string
	RunsCollection    string
	// Optional. Empty disables the archive mirror.
	ArchiveBucket string
}

// DefaultPipelineConfig returns the configuration the job runs with when
// nothing is overridden.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CatalogURL:      DefaultCatalogURL,
		PackageID:       DefaultPackageID,
		WorkDir:         ".",
		ArchiveFile:     DefaultArchiveFile,
		ExtractDir:      DefaultExtractDir,
		Ward:            DefaultWard,
		RequestType:     DefaultRequestType,
		FolderID:        DefaultFolderID,
		CredentialsFile: DefaultCredentialsFile,
		CredentialsEnv:  DefaultCredentialsEnv,
		RunsCollection:  DefaultRunsCollection,
	}
}

// LoadPipelineConfig loads the defaults overridden by environment variables
// and validates the result.
func LoadPipelineConfig() (*PipelineConfig, error) {
	return LoadPipelineConfigFrom(gcp.ProcessEnv)
}

// LoadPipelineConfigFrom is LoadPipelineConfig reading from env.
func LoadPipelineConfigFrom(env gcp.Env) (*PipelineConfig, error) {
	d := DefaultPipelineConfig()
	config := PipelineConfig{
		CatalogURL:        env.String("CKAN_BASE_URL", d.CatalogURL),
		PackageID:         env.String("CKAN_PACKAGE_ID", d.PackageID),
		WorkDir:           env.String("WORK_DIR", d.WorkDir),
		ArchiveFile:       env.String("ARCHIVE_FILE", d.ArchiveFile),
		ExtractDir:        env.String("EXTRACT_DIR", d.ExtractDir),
		Ward:              env.String("FILTER_WARD", d.Ward),
		RequestType:       env.String("FILTER_REQUEST_TYPE", d.RequestType),
		FolderID:          env.String("DRIVE_FOLDER_ID", d.FolderID),
		CredentialsFile:   env.String("CREDENTIALS_FILE", d.CredentialsFile),
		CredentialsEnv:    env.String("CREDENTIALS_ENV", d.CredentialsEnv),
		ProjectID:         env.String("PROJECT_ID", ""),
		FirestoreDatabase: env.String("FIRESTORE_DATABASE", ""),
		RunsCollection:    env.String("RUNS_COLLECTION", d.RunsCollection),
		ArchiveBucket:     env.String("ARCHIVE_BUCKET", ""),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that every required field is set.
func (c PipelineConfig) Validate() error {
	required := []struct{ name, value string }{
		{"CKAN_BASE_URL", c.CatalogURL},
		{"CKAN_PACKAGE_ID", c.PackageID},
		{"ARCHIVE_FILE", c.ArchiveFile},
		{"EXTRACT_DIR", c.ExtractDir},
		{"FILTER_WARD", c.Ward},
		{"FILTER_REQUEST_TYPE", c.RequestType},
		{"DRIVE_FOLDER_ID", c.FolderID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must be set", r.name)
		}
	}
	if c.ProjectID != "" && c.RunsCollection == "" {
		return fmt.Errorf("RUNS_COLLECTION must be set when PROJECT_ID is set")
	}
	return nil
}

// ArchivePath is where the downloaded archive is written.
func (c PipelineConfig) ArchivePath() string {
	return filepath.Join(c.WorkDir, c.ArchiveFile)
}

// ExtractPath is the directory the archive is extracted into.
func (c PipelineConfig) ExtractPath() string {
	return filepath.Join(c.WorkDir, c.ExtractDir)
}

// Predicates returns the row filter built from the configured values.
func (c PipelineConfig) Predicates() []RowPredicate {
	return []RowPredicate{
		Equals(WardColumn, c.Ward),
		Contains(RequestTypeColumn, c.RequestType),
	}
}
