package models

// Confirmation is the human-approved metadata applied by the
// confirmation gate in a single atomic write.
type Confirmation struct {
	ProjectName          string
	ProjectID            string
	IsNewEnquiry         bool
	ConfirmedAttachments []string
}
