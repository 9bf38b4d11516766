package models

import "time"

// RunRecord is the Firestore record for one refresh run.
// It tracks the overall status and the per-file outcomes of the run.
type RunRecord struct {
	PackageID      string    `firestore:"packageId,omitempty"`
	ResourceID     string    `firestore:"resourceId,omitempty"`
	ResourceURL    string    `firestore:"resourceUrl,omitempty"`
	Status         string    `firestore:"status,omitempty"`
	ErrorDetails   string    `firestore:"errorDetails,omitempty"`
	FilesFiltered  int       `firestore:"filesFiltered"`
	FilesSkipped   int       `firestore:"filesSkipped"`
	FilesPublished int       `firestore:"filesPublished"`
	FilesFailed    int       `firestore:"filesFailed"`
	Trigger        string    `firestore:"trigger,omitempty"` // cli or the CloudEvent id
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`
	FinishedAt     time.Time `firestore:"finishedAt,omitempty"`
}

// Run statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)
