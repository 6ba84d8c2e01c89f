package dto

// AttachmentAnalysisRequest asks for an AI analysis of a chosen subset
// of an email's attachments.
type AttachmentAnalysisRequest struct {
	EmailID             string   `json:"email_id" binding:"required"`
	AttachmentFilenames []string `json:"attachment_filenames" binding:"required"`
}

// AttachmentAnalysisResult is the structured outcome of one analysis run.
type AttachmentAnalysisResult struct {
	Summary          string            `json:"summary"`
	DocumentType     string            `json:"document_type"`
	KeyPoints        []string          `json:"key_points"`
	TechnicalDetails map[string]string `json:"technical_details,omitempty"`

	// AttachmentErrors lists attachments that could not be analyzed,
	// filename -> reason. Present only on partial failure.
	AttachmentErrors map[string]string `json:"attachment_errors,omitempty"`
}

// AttachmentAnalysisContext carries everything the model needs to
// analyze the selected attachments.
type AttachmentAnalysisContext struct {
	AttachmentFilenames []string
	EmailContext        string

	// Extracted text per filename, for attachments whose content could
	// be retrieved
	AttachmentContents map[string]string
}
