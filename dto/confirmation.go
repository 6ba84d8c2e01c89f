package dto

// EmailConfirmationRequest is the one-shot human sign-off payload.
type EmailConfirmationRequest struct {
	EmailID              string   `json:"email_id" binding:"required"`
	ProjectName          string   `json:"project_name"`
	ProjectID            string   `json:"project_id"`
	IsNewEnquiry         bool     `json:"is_new_enquiry"`
	ConfirmedAttachments []string `json:"confirmed_attachments"`
}
