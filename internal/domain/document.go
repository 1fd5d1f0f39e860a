package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document is a scanned file tracked through the ingestion pipeline.
// Identity is the content hash: at most one document exists per hash.
type Document struct {
	ID               string
	Filename         string
	OriginalFilename string
	FileHash         string
	FilePath         string // empty until the file is relocated out of staging
	FileSize         int64
	MimeType         string

	Title        string
	Summary      string
	FullText     string
	DocumentDate *time.Time
	TaxRelevant  bool

	CorrespondentID string
	DocTypeID       string
	TagIDs          []string
	ParentID        string // manual grouping; empty for top-level documents

	OCRStatus    Status
	AIStatus     Status
	VectorStatus Status

	ViewCount  int
	LastViewed *time.Time
	Approved   bool
	ApprovedAt *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// NewDocument creates a pending document record for a freshly staged file.
func NewDocument(filename, hash, mimeType string, size int64) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:               uuid.NewString(),
		Filename:         filename,
		OriginalFilename: filename,
		FileHash:         hash,
		FileSize:         size,
		MimeType:         mimeType,
		OCRStatus:        StatusPending,
		AIStatus:         StatusPending,
		VectorStatus:     StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// HasFailedStage reports whether any stage ended in failure. Dedup treats such
// a record as replaceable rather than a true duplicate.
func (d *Document) HasFailedStage() bool {
	return d.OCRStatus == StatusFailed || d.AIStatus == StatusFailed || d.VectorStatus == StatusFailed
}

// StageStatus returns the status of the given stage.
func (d *Document) StageStatus(stage Stage) Status {
	switch stage {
	case StageOCR:
		return d.OCRStatus
	case StageAI:
		return d.AIStatus
	case StageVector:
		return d.VectorStatus
	}
	return ""
}

// SetStageStatus applies a transition-checked status change to one stage.
func (d *Document) SetStageStatus(stage Stage, to Status) error {
	switch stage {
	case StageOCR:
		next, err := d.OCRStatus.Transition(to)
		if err != nil {
			return err
		}
		d.OCRStatus = next
	case StageAI:
		next, err := d.AIStatus.Transition(to)
		if err != nil {
			return err
		}
		d.AIStatus = next
	case StageVector:
		next, err := d.VectorStatus.Transition(to)
		if err != nil {
			return err
		}
		d.VectorStatus = next
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Correspondent is the sender or issuer of documents.
type Correspondent struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// DocType classifies documents (invoice, contract, ...).
type DocType struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Tag is a free-form label attached to documents.
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// LogStatus classifies a processing log entry.
type LogStatus string

const (
	// LogSuccess records a completed operation.
	LogSuccess LogStatus = "success"
	// LogError records a failed operation.
	LogError LogStatus = "error"
	// LogInfo records a neutral event.
	LogInfo LogStatus = "info"
	// LogWarning records a degraded-but-continuing event.
	LogWarning LogStatus = "warning"
)

// ProcessingLog is one append-only audit entry for a pipeline operation.
// Entries are never mutated and never required for correctness.
type ProcessingLog struct {
	ID         string
	DocumentID string // may be empty for operations without a record
	Operation  string
	Status     LogStatus
	Message    string
	CreatedAt  time.Time
}

// NewProcessingLog creates a log entry stamped with the current time.
func NewProcessingLog(documentID, operation string, status LogStatus, message string) *ProcessingLog {
	return &ProcessingLog{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Operation:  operation,
		Status:     status,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
}
