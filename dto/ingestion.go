package dto

// IngestionReport summarizes one run of the ingestion job.
type IngestionReport struct {
	Fetched           int                `json:"fetched"`
	Created           int                `json:"created"`
	SkippedDuplicates int                `json:"skipped_duplicates"`
	Failures          []IngestionFailure `json:"failures,omitempty"`
}

// IngestionFailure records one message that could not be processed.
// The batch continues past it.
type IngestionFailure struct {
	MessageID string `json:"message_id"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
}

// EmailLogUpdated is the fanout notification consumed by the operator UI.
type EmailLogUpdated struct {
	EventID   string `json:"event_id"`
	EmailID   string `json:"email_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
