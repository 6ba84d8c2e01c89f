package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enquira/mailtriage/interfaces"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/tracing"
)

type analysisResultRepository struct {
	db *gorm.DB
}

func NewAnalysisResultRepository(db *gorm.DB) interfaces.AnalysisResultRepository {
	return &analysisResultRepository{
		db: db,
	}
}

func (r *analysisResultRepository) Save(ctx context.Context, result *models.AnalysisResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisResultRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if result == nil || result.RequestKey == "" {
		return mterrors.ErrValidation
	}

	// Identical request keys overwrite so retried analyses stay single-row
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "request_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"summary", "document_type", "key_points", "technical_details", "attachment_errors",
			}),
		}).
		Create(result).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (r *analysisResultRepository) GetByRequestKey(ctx context.Context, requestKey string) (*models.AnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisResultRepository.GetByRequestKey")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var result models.AnalysisResult
	err := r.db.WithContext(ctx).
		Where("request_key = ?", requestKey).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &result, nil
}

func (r *analysisResultRepository) ListByEmail(ctx context.Context, emailID string) ([]*models.AnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisResultRepository.ListByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEmail(span, emailID)

	var results []*models.AnalysisResult
	err := r.db.WithContext(ctx).
		Where("email_id = ?", emailID).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return results, nil
}
