package interfaces

import (
	"context"

	"github.com/enquira/mailtriage/internal/enum"
	"github.com/enquira/mailtriage/internal/models"
)

// EmailLogRepository is the durable store backing the processing
// workflow. All writes to a given email id are serialized by the
// implementation; reads are lock-free snapshots and may observe a
// status mid-transition.
type EmailLogRepository interface {
	Create(ctx context.Context, log *models.EmailLog) (string, error)
	GetByID(ctx context.Context, id string) (*models.EmailLog, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.EmailLog, error)
	List(ctx context.Context, limit, offset int) ([]*models.EmailLog, error)

	// UpdateStatus is a compare-and-swap on the expected prior status.
	// When the stored status differs from `from` it fails with
	// ErrStatusConflict and leaves the row untouched. A non-empty reason
	// is recorded against the log for later inspection.
	UpdateStatus(ctx context.Context, id string, from, to enum.ProcessingStatus, reason string) error

	// SetParsedAttachments records the parsed body and attachment list.
	// The attachment list is written once; a second write fails with
	// ErrAttachmentsWritten.
	SetParsedAttachments(ctx context.Context, id, body, bodyHTML string, attachments models.AttachmentList) error

	SetEmailSummary(ctx context.Context, id, summary string) error
	SetSuggestions(ctx context.Context, id string, projectName, projectID string, newEnquiry *bool) error

	// ApplyConfirmation atomically writes the human-confirmed metadata
	// and flips the confirmed flag. Exactly one call per email ever
	// succeeds; later calls fail with ErrAlreadyConfirmed.
	ApplyConfirmation(ctx context.Context, id string, confirmation models.Confirmation) error
}

// AnalysisResultRepository persists the outcome of analysis requests.
type AnalysisResultRepository interface {
	Save(ctx context.Context, result *models.AnalysisResult) error
	GetByRequestKey(ctx context.Context, requestKey string) (*models.AnalysisResult, error)
	ListByEmail(ctx context.Context, emailID string) ([]*models.AnalysisResult, error)
}
