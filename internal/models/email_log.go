package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/enquira/mailtriage/internal/enum"
	"github.com/enquira/mailtriage/internal/utils"
)

// EmailLog tracks one ingested email through its processing lifecycle
type EmailLog struct {
	ID string `gorm:"column:id;type:varchar(50);primaryKey"`

	// Message identity from the mail source. MessageID is the dedupe key.
	MessageID string `gorm:"column:message_id;uniqueIndex;type:varchar(512);not null"`
	SourceUID uint32 `gorm:"column:source_uid;index"`

	// Immutable once set by ingestion
	SenderAddress string             `gorm:"column:sender_address;type:varchar(255);index"`
	Subject       string             `gorm:"column:subject;type:text"`
	Body          string             `gorm:"column:body;type:text"`
	BodyHTML      string             `gorm:"column:body_html;type:text"`
	ReceivedAt    time.Time          `gorm:"column:received_at;type:timestamp;index;not null"`
	RoleOfInbox   enum.RecipientRole `gorm:"column:role_of_inbox;type:varchar(20);default:UNKNOWN"`

	// State machine
	Status          enum.ProcessingStatus `gorm:"column:status;type:varchar(50);index;not null"`
	StatusUpdatedAt time.Time             `gorm:"column:status_updated_at;type:timestamp"`
	ErrorMessage    string                `gorm:"column:error_message;type:text"`

	// Set once by the parser, immutable afterward
	ParsedAttachments AttachmentList `gorm:"column:parsed_attachments;type:jsonb"`

	// AI-produced synopsis of the body, may be absent
	EmailSummary string `gorm:"column:email_summary;type:text"`

	// Analysis-suggested metadata. Never authoritative; the confirmation
	// gate writes the confirmed columns below.
	SuggestedProjectName string `gorm:"column:suggested_project_name;type:varchar(255)"`
	SuggestedProjectID   string `gorm:"column:suggested_project_id;type:varchar(100)"`
	SuggestedNewEnquiry  *bool  `gorm:"column:suggested_new_enquiry"`

	// Human-confirmed metadata, writable only through the confirmation gate
	ProjectName          *string        `gorm:"column:project_name;type:varchar(255)"`
	ProjectID            *string        `gorm:"column:project_id;type:varchar(100)"`
	IsNewEnquiry         *bool          `gorm:"column:is_new_enquiry"`
	Confirmed            bool           `gorm:"column:confirmed;default:false"`
	ConfirmedAt          *time.Time     `gorm:"column:confirmed_at;type:timestamp"`
	ConfirmedAttachments pq.StringArray `gorm:"column:confirmed_attachments;type:text[]"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailLog) TableName() string {
	return "email_logs"
}

func (e *EmailLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	if e.Status == "" {
		e.Status = enum.StatusReceived
	}
	e.CreatedAt = utils.Now()
	e.StatusUpdatedAt = e.CreatedAt
	return nil
}

// Attachment returns the parsed attachment with the given original
// filename, or nil when the email has no such attachment.
func (e *EmailLog) Attachment(originalFilename string) *Attachment {
	for i := range e.ParsedAttachments {
		if e.ParsedAttachments[i].OriginalFilename == originalFilename {
			return &e.ParsedAttachments[i]
		}
	}
	return nil
}
