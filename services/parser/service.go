package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/enum"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/tracing"
	"github.com/enquira/mailtriage/services/classifier"
)

type parserService struct {
	emailLogRepository interfaces.EmailLogRepository
	storage            interfaces.StorageService
	events             interfaces.EventPublisher
	log                logger.Logger
}

func NewParserService(
	emailLogRepository interfaces.EmailLogRepository,
	storage interfaces.StorageService,
	events interfaces.EventPublisher,
	log logger.Logger,
) interfaces.ParserService {
	return &parserService{
		emailLogRepository: emailLogRepository,
		storage:            storage,
		events:             events,
		log:                log,
	}
}

// Parse decodes the raw message into a classified attachment list and
// the body text without touching the store.
func (s *parserService) Parse(ctx context.Context, raw []byte) (models.AttachmentList, string, string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "parserService.Parse")
	defer span.Finish()
	tracing.TagComponentService(span)

	attachments, _, body, bodyHTML, err := s.decode(raw)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, "", "", err
	}
	return attachments, body, bodyHTML, nil
}

// Process parses the raw message for an existing log and commits the
// resulting state transition: RECEIVED -> PARSING -> PARSED, or
// -> FAILED_PARSING when the container itself cannot be decoded.
func (s *parserService) Process(ctx context.Context, log *models.EmailLog, raw []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "parserService.Process")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEmail(span, log.ID)

	err := s.emailLogRepository.UpdateStatus(ctx, log.ID, enum.StatusReceived, enum.StatusParsing, "")
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.publish(ctx, log.ID, enum.StatusParsing)

	attachments, contents, body, bodyHTML, err := s.decode(raw)
	if err != nil {
		reason := fmt.Sprintf("message could not be decoded: %v", err)
		if failErr := s.emailLogRepository.UpdateStatus(ctx, log.ID, enum.StatusParsing, enum.StatusFailedParsing, reason); failErr != nil {
			tracing.TraceErr(span, failErr)
		}
		s.publish(ctx, log.ID, enum.StatusFailedParsing)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "decode message")
	}

	// Store the raw bytes of supported attachments so analysis can
	// retrieve them later. An upload failure downgrades the attachment,
	// never the email.
	for i := range attachments {
		if !attachments[i].Supported {
			continue
		}
		key := fmt.Sprintf("%s/%s", log.ID, attachments[i].OriginalFilename)
		content := contents[attachments[i].OriginalFilename]
		if err := s.storage.Upload(ctx, key, content, attachments[i].ContentType); err != nil {
			s.log.Warnf("Failed to store attachment %s for email %s: %v", attachments[i].OriginalFilename, log.ID, err)
			attachments[i].Supported = false
			attachments[i].AnalysisError = fmt.Sprintf("attachment bytes could not be stored: %v", err)
			continue
		}
		attachments[i].StorageKey = key
	}

	err = s.emailLogRepository.SetParsedAttachments(ctx, log.ID, body, bodyHTML, attachments)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err = s.emailLogRepository.UpdateStatus(ctx, log.ID, enum.StatusParsing, enum.StatusParsed, "")
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.publish(ctx, log.ID, enum.StatusParsed)

	span.LogKV("attachments", len(attachments))
	return nil
}

// decode splits the MIME container into classified attachments plus
// their raw contents keyed by filename.
func (s *parserService) decode(raw []byte) (models.AttachmentList, map[string][]byte, string, string, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, "", "", errors.Wrap(err, "read envelope")
	}

	body := envelope.Text
	bodyHTML := envelope.HTML
	if strings.TrimSpace(body) == "" && bodyHTML != "" {
		if text, err := HTMLToPlainText(bodyHTML); err == nil {
			body = text
		}
	}

	attachments := models.AttachmentList{}
	contents := make(map[string][]byte)
	seen := make(map[string]bool)

	parts := append([]*enmime.Part{}, envelope.Attachments...)
	parts = append(parts, envelope.Inlines...)
	for _, part := range parts {
		filename := part.FileName
		if filename == "" {
			continue
		}
		if seen[filename] {
			continue
		}
		seen[filename] = true

		fileType := classifier.Classify(filename)
		attachment := models.Attachment{
			OriginalFilename: filename,
			Extension:        classifier.Extension(filename),
			ContentType:      part.ContentType,
			Size:             len(part.Content),
			Supported:        fileType.Supported,
			Icon:             fileType.Icon,
			Category:         fileType.Category,
		}
		if len(part.Content) == 0 && fileType.Supported {
			attachment.Supported = false
			attachment.AnalysisError = "attachment has no content"
		}

		attachments = append(attachments, attachment)
		contents[filename] = part.Content
	}

	return attachments, contents, body, bodyHTML, nil
}

func (s *parserService) publish(ctx context.Context, emailID string, status enum.ProcessingStatus) {
	if s.events == nil {
		return
	}
	s.events.PublishEmailLogUpdated(ctx, emailID, status.String())
}

// HTMLToPlainText strips markup so the body can feed summarization.
func HTMLToPlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Each(func(i int, el *goquery.Selection) {
		el.Remove()
	})

	text := doc.Find("body").Text()
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n\n", "\n")

	return text, nil
}
