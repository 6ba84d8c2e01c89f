package interfaces

import (
	"context"

	"github.com/enquira/mailtriage/dto"
)

// AIService is the summarization capability used by the analysis
// orchestrator. Implementations call an external model and must honor
// the context deadline.
type AIService interface {
	// SummarizeEmail produces a short synopsis of the email body
	SummarizeEmail(ctx context.Context, body, subject, sender string) (string, error)

	// ExtractProjectID returns a suggested project identifier found in
	// the email content, or "" when none is present
	ExtractProjectID(ctx context.Context, body, subject string) (string, error)

	// AnalyzeAttachments produces a structured analysis of the named
	// attachments given the surrounding email context
	AnalyzeAttachments(ctx context.Context, request dto.AttachmentAnalysisContext) (*dto.AttachmentAnalysisResult, error)
}
