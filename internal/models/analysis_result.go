package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/enquira/mailtriage/internal/utils"
)

// AnalysisResult is the durable outcome of one analysis request,
// keyed by the email and the exact attachment set that was analyzed.
type AnalysisResult struct {
	ID      string `gorm:"column:id;type:varchar(50);primaryKey"`
	EmailID string `gorm:"column:email_id;type:varchar(50);index;not null"`

	// email id plus the sorted attachment filename set
	RequestKey string `gorm:"column:request_key;uniqueIndex;type:varchar(1000);not null"`

	Summary          string         `gorm:"column:summary;type:text"`
	DocumentType     string         `gorm:"column:document_type;type:varchar(255)"`
	KeyPoints        pq.StringArray `gorm:"column:key_points;type:text[]"`
	TechnicalDetails JSONMap        `gorm:"column:technical_details;type:jsonb"`

	// per-attachment extraction/summarization failures, filename -> reason
	AttachmentErrors JSONMap `gorm:"column:attachment_errors;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}

func (r *AnalysisResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("analysis", 16)
	}
	r.CreatedAt = utils.Now()
	return nil
}
