package analysis

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/enum"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/tracing"
	"github.com/enquira/mailtriage/internal/utils"
)

type analysisService struct {
	emailLogRepository interfaces.EmailLogRepository
	analysisResults    interfaces.AnalysisResultRepository
	ai                 interfaces.AIService
	storage            interfaces.StorageService
	events             interfaces.EventPublisher
	log                logger.Logger

	// one in-flight analysis per (email id, filename set)
	group singleflight.Group
}

func NewAnalysisService(
	emailLogRepository interfaces.EmailLogRepository,
	analysisResults interfaces.AnalysisResultRepository,
	ai interfaces.AIService,
	storage interfaces.StorageService,
	events interfaces.EventPublisher,
	log logger.Logger,
) interfaces.AnalysisService {
	return &analysisService{
		emailLogRepository: emailLogRepository,
		analysisResults:    analysisResults,
		ai:                 ai,
		storage:            storage,
		events:             events,
		log:                log,
	}
}

// Analyze produces a structured analysis of the chosen attachment
// subset. Concurrent calls with the identical subset join a single
// execution and share its result; different subsets run independently.
func (s *analysisService) Analyze(ctx context.Context, emailID string, attachmentFilenames []string) (*dto.AttachmentAnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.Analyze")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEmail(span, emailID)

	if emailID == "" || len(attachmentFilenames) == 0 {
		return nil, mterrors.ErrValidation
	}

	filenames := utils.CanonicalFilenameSet(attachmentFilenames)
	requestKey := emailID + "|" + strings.Join(filenames, ",")
	span.LogKV("request_key", requestKey)

	result, err, shared := s.group.Do(requestKey, func() (interface{}, error) {
		return s.run(ctx, emailID, filenames, requestKey)
	})
	span.LogKV("joined_in_flight", shared)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return result.(*dto.AttachmentAnalysisResult), nil
}

func (s *analysisService) run(ctx context.Context, emailID string, filenames []string, requestKey string) (*dto.AttachmentAnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.run")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEmail(span, emailID)

	log, err := s.emailLogRepository.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, mterrors.ErrEmailLogNotFound
	}
	if !log.Status.Analyzable() {
		return nil, errors.Wrapf(mterrors.ErrEmailNotAnalyzable, "status %s", log.Status)
	}

	for _, filename := range filenames {
		attachment := log.Attachment(filename)
		if attachment == nil {
			return nil, errors.Wrapf(mterrors.ErrInvalidAttachment, "%s not found", filename)
		}
		if !attachment.Supported {
			return nil, errors.Wrapf(mterrors.ErrInvalidAttachment, "%s is unsupported", filename)
		}
	}

	// Claim the transition. A conflict means another subset already
	// moved the email to ANALYZING or COMPLETE; the analysis itself can
	// still proceed since subsets are independent.
	err = s.emailLogRepository.UpdateStatus(ctx, emailID, enum.StatusParsed, enum.StatusAnalyzing, "")
	switch {
	case err == nil:
		s.publish(ctx, emailID, enum.StatusAnalyzing)
	case errors.Is(err, mterrors.ErrStatusConflict):
		span.SetTag("transition_skipped", true)
	default:
		return nil, err
	}

	contents, attachmentErrors := s.extractContents(ctx, log, filenames)
	if len(attachmentErrors) == len(filenames) {
		reason := "no selected attachment could be read"
		s.failAnalysis(ctx, emailID, reason)
		return nil, errors.Wrap(mterrors.ErrUpstreamFailure, reason)
	}

	analysisCtx := dto.AttachmentAnalysisContext{
		AttachmentFilenames: filenames,
		EmailContext:        s.emailContext(log),
		AttachmentContents:  contents,
	}

	result, err := s.ai.AnalyzeAttachments(ctx, analysisCtx)
	if err != nil {
		s.failAnalysis(ctx, emailID, fmt.Sprintf("summarization failed: %v", err))
		return nil, err
	}

	if len(attachmentErrors) > 0 {
		if result.AttachmentErrors == nil {
			result.AttachmentErrors = make(map[string]string, len(attachmentErrors))
		}
		for filename, reason := range attachmentErrors {
			result.AttachmentErrors[filename] = reason
		}
	}

	if err := s.analysisResults.Save(ctx, &models.AnalysisResult{
		EmailID:          emailID,
		RequestKey:       requestKey,
		Summary:          result.Summary,
		DocumentType:     result.DocumentType,
		KeyPoints:        result.KeyPoints,
		TechnicalDetails: toJSONMap(result.TechnicalDetails),
		AttachmentErrors: toJSONMap(result.AttachmentErrors),
	}); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.fillSuggestions(ctx, log)

	// Another subset may already have completed the email; losing this
	// race is fine, the analysis result above is already durable.
	err = s.emailLogRepository.UpdateStatus(ctx, emailID, enum.StatusAnalyzing, enum.StatusComplete, "")
	switch {
	case err == nil:
		s.publish(ctx, emailID, enum.StatusComplete)
	case errors.Is(err, mterrors.ErrStatusConflict):
		span.SetTag("completion_skipped", true)
	default:
		return nil, err
	}

	return result, nil
}

// extractContents reads the stored bytes of each selected attachment.
// Textual payloads feed the model verbatim; binary payloads are passed
// by reference only. Unreadable attachments are collected as errors.
func (s *analysisService) extractContents(ctx context.Context, log *models.EmailLog, filenames []string) (map[string]string, map[string]string) {
	contents := make(map[string]string)
	attachmentErrors := make(map[string]string)

	for _, filename := range filenames {
		attachment := log.Attachment(filename)
		if attachment.ExtractedText != "" {
			contents[filename] = attachment.ExtractedText
			continue
		}
		if attachment.StorageKey == "" {
			attachmentErrors[filename] = "attachment bytes were not stored"
			continue
		}

		data, err := s.storage.Download(ctx, attachment.StorageKey)
		if err != nil {
			s.log.Warnf("Failed to download attachment %s for email %s: %v", filename, log.ID, err)
			attachmentErrors[filename] = fmt.Sprintf("attachment could not be retrieved: %v", err)
			continue
		}
		if isTextual(attachment.ContentType, data) {
			contents[filename] = string(data)
		}
	}

	return contents, attachmentErrors
}

func (s *analysisService) emailContext(log *models.EmailLog) string {
	var sb strings.Builder
	sb.WriteString("From: ")
	sb.WriteString(log.SenderAddress)
	sb.WriteString("\nSubject: ")
	sb.WriteString(log.Subject)
	if log.EmailSummary != "" {
		sb.WriteString("\nSummary: ")
		sb.WriteString(log.EmailSummary)
	} else if log.Body != "" {
		body := log.Body
		if len(body) > 2000 {
			body = body[:2000]
		}
		sb.WriteString("\n\n")
		sb.WriteString(body)
	}
	return sb.String()
}

// fillSuggestions records the AI-derived metadata suggestions. All of
// it is advisory and best effort; the confirmation gate owns the
// authoritative values.
func (s *analysisService) fillSuggestions(ctx context.Context, log *models.EmailLog) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.fillSuggestions")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEmail(span, log.ID)

	if log.EmailSummary == "" && log.Body != "" {
		summary, err := s.ai.SummarizeEmail(ctx, log.Body, log.Subject, log.SenderAddress)
		if err != nil {
			s.log.Warnf("Email summary failed for %s: %v", log.ID, err)
		} else if summary != "" {
			if err := s.emailLogRepository.SetEmailSummary(ctx, log.ID, summary); err != nil {
				tracing.TraceErr(span, err)
			}
		}
	}

	projectID, err := s.ai.ExtractProjectID(ctx, log.Body, log.Subject)
	if err != nil {
		s.log.Warnf("Project id extraction failed for %s: %v", log.ID, err)
		return
	}

	projectName := utils.NormalizeEmailSubject(log.Subject)
	if projectID == "" && projectName == "" {
		return
	}
	if err := s.emailLogRepository.SetSuggestions(ctx, log.ID, projectName, projectID, nil); err != nil {
		tracing.TraceErr(span, err)
	}
}

func (s *analysisService) failAnalysis(ctx context.Context, emailID, reason string) {
	err := s.emailLogRepository.UpdateStatus(ctx, emailID, enum.StatusAnalyzing, enum.StatusFailedAnalysis, reason)
	if err != nil {
		s.log.Warnf("Failed to record analysis failure for %s: %v", emailID, err)
		return
	}
	s.publish(ctx, emailID, enum.StatusFailedAnalysis)
}

func (s *analysisService) publish(ctx context.Context, emailID string, status enum.ProcessingStatus) {
	if s.events == nil {
		return
	}
	s.events.PublishEmailLogUpdated(ctx, emailID, status.String())
}

func isTextual(contentType string, content []byte) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	return len(content) > 0 && utf8.Valid(content)
}

func toJSONMap(m map[string]string) models.JSONMap {
	if len(m) == 0 {
		return nil
	}
	out := make(models.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
