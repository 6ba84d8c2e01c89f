package confirmation

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/tracing"
	"github.com/enquira/mailtriage/internal/utils"
)

type confirmationService struct {
	emailLogRepository interfaces.EmailLogRepository
	events             interfaces.EventPublisher
	log                logger.Logger
}

func NewConfirmationService(
	emailLogRepository interfaces.EmailLogRepository,
	events interfaces.EventPublisher,
	log logger.Logger,
) interfaces.ConfirmationService {
	return &confirmationService{
		emailLogRepository: emailLogRepository,
		events:             events,
		log:                log,
	}
}

// Confirm records the human-approved metadata for an email. The write
// is one-shot: after the first success every further call fails with
// ErrAlreadyConfirmed and mutates nothing.
func (s *confirmationService) Confirm(ctx context.Context, request dto.EmailConfirmationRequest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "confirmationService.Confirm")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEmail(span, request.EmailID)

	if request.EmailID == "" {
		return errors.Wrap(mterrors.ErrValidation, "email_id is required")
	}
	if strings.TrimSpace(request.ProjectName) == "" {
		return errors.Wrap(mterrors.ErrValidation, "project_name is required")
	}
	if strings.TrimSpace(request.ProjectID) == "" {
		return errors.Wrap(mterrors.ErrValidation, "project_id is required")
	}

	log, err := s.emailLogRepository.GetByID(ctx, request.EmailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if log == nil {
		return mterrors.ErrEmailLogNotFound
	}

	// Every confirmed filename must name a parsed attachment
	for _, filename := range request.ConfirmedAttachments {
		if log.Attachment(filename) == nil {
			return errors.Wrapf(mterrors.ErrValidation, "unknown attachment %s", filename)
		}
	}

	confirmed := models.Confirmation{
		ProjectName:          strings.TrimSpace(request.ProjectName),
		ProjectID:            strings.TrimSpace(request.ProjectID),
		IsNewEnquiry:         request.IsNewEnquiry,
		ConfirmedAttachments: utils.CanonicalFilenameSet(request.ConfirmedAttachments),
	}

	err = s.emailLogRepository.ApplyConfirmation(ctx, request.EmailID, confirmed)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if s.events != nil {
		s.events.PublishEmailLogUpdated(ctx, request.EmailID, log.Status.String())
	}

	s.log.Infof("Email %s confirmed for project %s", request.EmailID, confirmed.ProjectID)
	return nil
}
