package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/enum"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/tracing"
	"github.com/enquira/mailtriage/internal/utils"
)

type emailLogRepository struct {
	db *gorm.DB
}

func NewEmailLogRepository(db *gorm.DB) interfaces.EmailLogRepository {
	return &emailLogRepository{
		db: db,
	}
}

func (r *emailLogRepository) Create(ctx context.Context, log *models.EmailLog) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if log == nil {
		return "", mterrors.ErrValidation
	}

	if log.MessageID != "" {
		log.MessageID = utils.NormalizeMessageID(log.MessageID)
	}

	// Check for an already ingested message before creating
	existing := &models.EmailLog{}
	err := r.db.WithContext(ctx).
		Where("message_id = ?", log.MessageID).
		First(existing).Error

	if err == nil {
		span.SetTag("duplicate", true)
		return existing.ID, mterrors.ErrDuplicateMessage
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return "", err
	}

	result := r.db.WithContext(ctx).Create(log)
	if result.Error != nil {
		// A concurrent ingestion run may have won the unique index race
		if strings.Contains(result.Error.Error(), "duplicate key") {
			span.SetTag("duplicate", true)
			return "", mterrors.ErrDuplicateMessage
		}
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return log.ID, nil
}

// GetByID retrieves an email log by its ID, (nil, nil) when absent
func (r *emailLogRepository) GetByID(ctx context.Context, id string) (*models.EmailLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var log models.EmailLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &log, nil
}

// GetByMessageID retrieves an email log by its Internet Message-ID
func (r *emailLogRepository) GetByMessageID(ctx context.Context, messageID string) (*models.EmailLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	messageID = utils.NormalizeMessageID(messageID)

	var log models.EmailLog
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &log, nil
}

// List retrieves email logs ordered by received_at descending
func (r *emailLogRepository) List(ctx context.Context, limit, offset int) ([]*models.EmailLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if limit <= 0 {
		limit = 100
	}

	var logs []*models.EmailLog
	if err := r.db.WithContext(ctx).
		Order("received_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return logs, nil
}

// UpdateStatus performs a compare-and-swap on the stored status. The
// UPDATE only matches when the stored status equals `from`, so two
// concurrent workers can never both think they own the transition.
func (r *emailLogRepository) UpdateStatus(ctx context.Context, id string, from, to enum.ProcessingStatus, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEmail(span, id)
	span.LogKV("from", from.String(), "to", to.String())

	updates := map[string]interface{}{
		"status":            to,
		"status_updated_at": utils.Now(),
		"updated_at":        utils.Now(),
	}
	if reason != "" {
		updates["error_message"] = reason
	}

	result := r.db.WithContext(ctx).
		Model(&models.EmailLog{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if existing == nil {
			return mterrors.ErrEmailLogNotFound
		}
		span.SetTag("conflict", true)
		span.LogKV("stored_status", existing.Status.String())
		return mterrors.ErrStatusConflict
	}

	return nil
}

// SetParsedAttachments records the decoded body and the attachment
// list. The list is written once; re-parsing creates a new log, never
// a mutation of this one.
func (r *emailLogRepository) SetParsedAttachments(ctx context.Context, id, body, bodyHTML string, attachments models.AttachmentList) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.SetParsedAttachments")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEmail(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.EmailLog{}).
		Where("id = ? AND parsed_attachments IS NULL", id).
		Updates(map[string]interface{}{
			"body":               body,
			"body_html":          bodyHTML,
			"parsed_attachments": attachments,
			"updated_at":         utils.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if existing == nil {
			return mterrors.ErrEmailLogNotFound
		}
		return mterrors.ErrAttachmentsWritten
	}

	return nil
}

func (r *emailLogRepository) SetEmailSummary(ctx context.Context, id, summary string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.SetEmailSummary")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEmail(span, id)

	return r.updateExisting(ctx, span, id, map[string]interface{}{
		"email_summary": summary,
		"updated_at":    utils.Now(),
	})
}

func (r *emailLogRepository) SetSuggestions(ctx context.Context, id string, projectName, projectID string, newEnquiry *bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.SetSuggestions")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEmail(span, id)

	updates := map[string]interface{}{
		"updated_at": utils.Now(),
	}
	if projectName != "" {
		updates["suggested_project_name"] = projectName
	}
	if projectID != "" {
		updates["suggested_project_id"] = projectID
	}
	if newEnquiry != nil {
		updates["suggested_new_enquiry"] = *newEnquiry
	}

	return r.updateExisting(ctx, span, id, updates)
}

// ApplyConfirmation flips the confirmed flag and writes the approved
// metadata in one statement. The `confirmed = false` guard makes the
// gate one-shot: exactly one caller ever sees a row update.
func (r *emailLogRepository) ApplyConfirmation(ctx context.Context, id string, confirmation models.Confirmation) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailLogRepository.ApplyConfirmation")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEmail(span, id)

	now := utils.Now()
	result := r.db.WithContext(ctx).
		Model(&models.EmailLog{}).
		Where("id = ? AND confirmed = ?", id, false).
		Updates(map[string]interface{}{
			"project_name":          confirmation.ProjectName,
			"project_id":            confirmation.ProjectID,
			"is_new_enquiry":        confirmation.IsNewEnquiry,
			"confirmed":             true,
			"confirmed_at":          now,
			"confirmed_attachments": pq.StringArray(confirmation.ConfirmedAttachments),
			"updated_at":            now,
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if existing == nil {
			return mterrors.ErrEmailLogNotFound
		}
		span.SetTag("already_confirmed", true)
		return mterrors.ErrAlreadyConfirmed
	}

	return nil
}

func (r *emailLogRepository) updateExisting(ctx context.Context, span opentracing.Span, id string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.EmailLog{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	if result.RowsAffected == 0 {
		return mterrors.ErrEmailLogNotFound
	}

	return nil
}
