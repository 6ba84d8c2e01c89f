package interfaces

import (
	"context"

	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/internal/models"
)

// IngestionService pulls new messages from the mail source, creates
// email logs and hands each new log to the attachment parser. Safe to
// invoke repeatedly and concurrently.
type IngestionService interface {
	Run(ctx context.Context) (*dto.IngestionReport, error)
}

// ParserService extracts attachment metadata and body content from a
// raw message and owns the RECEIVED -> PARSING -> PARSED transitions.
type ParserService interface {
	// Parse decodes the raw message without touching the store
	Parse(ctx context.Context, raw []byte) (models.AttachmentList, string, string, error)

	// Process parses the raw message for an existing log and commits the
	// resulting state transition
	Process(ctx context.Context, log *models.EmailLog, raw []byte) error
}

// AnalysisService produces an AI-assisted analysis for a chosen subset
// of an email's attachments, single-flight per request key.
type AnalysisService interface {
	Analyze(ctx context.Context, emailID string, attachmentFilenames []string) (*dto.AttachmentAnalysisResult, error)
}

// ConfirmationService records the one-shot human sign-off on an
// email's project metadata.
type ConfirmationService interface {
	Confirm(ctx context.Context, request dto.EmailConfirmationRequest) error
}

// EventPublisher notifies interested consumers (the operator UI) about
// committed changes. Implementations must never affect correctness of
// the workflow; failures are logged, not propagated.
type EventPublisher interface {
	PublishEmailLogUpdated(ctx context.Context, emailID string, status string)
	Close() error
}
