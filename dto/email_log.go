package dto

import (
	"time"

	"github.com/enquira/mailtriage/internal/models"
)

// EmailLogSummary is the list-view projection of an email log.
type EmailLogSummary struct {
	ID            string     `json:"id"`
	Subject       string     `json:"subject"`
	SenderAddress string     `json:"sender_address"`
	Status        string     `json:"status"`
	ReceivedAt    time.Time  `json:"received_at"`
	ProjectID     *string    `json:"project_id"`
	Confirmed     bool       `json:"confirmed"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// EmailLogDetails is the full projection including attachments.
type EmailLogDetails struct {
	EmailLogSummary
	Body                 string             `json:"body"`
	EmailSummary         string             `json:"email_summary"`
	ErrorMessage         string             `json:"error_message,omitempty"`
	ParsedAttachments    []ParsedAttachment `json:"parsed_attachments"`
	ProjectName          *string            `json:"project_name"`
	IsNewEnquiry         *bool              `json:"is_new_enquiry"`
	SuggestedProjectName string             `json:"suggested_project_name,omitempty"`
	SuggestedProjectID   string             `json:"suggested_project_id,omitempty"`
	ConfirmedAttachments []string           `json:"confirmed_attachments,omitempty"`
}

// ParsedAttachment is the wire form of one attachment.
type ParsedAttachment struct {
	OriginalFilename string `json:"original_filename"`
	Extension        string `json:"extension"`
	ContentType      string `json:"content_type,omitempty"`
	Size             int    `json:"size"`
	Supported        bool   `json:"supported"`
	Icon             string `json:"icon"`
	Category         string `json:"category"`
}

func MapEmailLogToSummary(log *models.EmailLog) EmailLogSummary {
	return EmailLogSummary{
		ID:            log.ID,
		Subject:       log.Subject,
		SenderAddress: log.SenderAddress,
		Status:        log.Status.String(),
		ReceivedAt:    log.ReceivedAt,
		ProjectID:     log.ProjectID,
		Confirmed:     log.Confirmed,
		ConfirmedAt:   log.ConfirmedAt,
	}
}

func MapEmailLogToDetails(log *models.EmailLog) EmailLogDetails {
	details := EmailLogDetails{
		EmailLogSummary:      MapEmailLogToSummary(log),
		Body:                 log.Body,
		EmailSummary:         log.EmailSummary,
		ErrorMessage:         log.ErrorMessage,
		ParsedAttachments:    make([]ParsedAttachment, 0, len(log.ParsedAttachments)),
		ProjectName:          log.ProjectName,
		IsNewEnquiry:         log.IsNewEnquiry,
		SuggestedProjectName: log.SuggestedProjectName,
		SuggestedProjectID:   log.SuggestedProjectID,
		ConfirmedAttachments: log.ConfirmedAttachments,
	}
	for _, att := range log.ParsedAttachments {
		details.ParsedAttachments = append(details.ParsedAttachments, ParsedAttachment{
			OriginalFilename: att.OriginalFilename,
			Extension:        att.Extension,
			ContentType:      att.ContentType,
			Size:             att.Size,
			Supported:        att.Supported,
			Icon:             att.Icon,
			Category:         att.Category,
		})
	}
	return details
}
