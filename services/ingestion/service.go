package ingestion

import (
	"context"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/tracing"
)

const (
	fetchTimeout      = 2 * time.Minute
	perMessageTimeout = 90 * time.Second
)

type ingestionService struct {
	emailLogRepository interfaces.EmailLogRepository
	mailSource         interfaces.MailSource
	parser             interfaces.ParserService
	log                logger.Logger
}

func NewIngestionService(
	emailLogRepository interfaces.EmailLogRepository,
	mailSource interfaces.MailSource,
	parser interfaces.ParserService,
	log logger.Logger,
) interfaces.IngestionService {
	return &ingestionService{
		emailLogRepository: emailLogRepository,
		mailSource:         mailSource,
		parser:             parser,
		log:                log,
	}
}

// Run pulls unread messages from the mail source, creates a log per
// new message and drives each through parsing. Dedupe is by Message-ID
// so repeated or concurrent runs never create duplicate rows. One
// message failing is recorded and the batch continues.
func (s *ingestionService) Run(ctx context.Context) (*dto.IngestionReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionService.Run")
	defer span.Finish()
	tracing.TagComponentService(span)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	messages, err := s.mailSource.FetchUnread(fetchCtx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "fetch unread messages")
	}

	report := &dto.IngestionReport{Fetched: len(messages)}
	for _, message := range messages {
		s.ingestOne(ctx, message, report)
	}

	span.LogKV("fetched", report.Fetched, "created", report.Created, "skipped_duplicates", report.SkippedDuplicates, "failures", len(report.Failures))
	s.log.Infof("Ingestion run: fetched=%d created=%d duplicates=%d failures=%d",
		report.Fetched, report.Created, report.SkippedDuplicates, len(report.Failures))
	return report, nil
}

func (s *ingestionService) ingestOne(ctx context.Context, message *interfaces.RawMessage, report *dto.IngestionReport) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionService.ingestOne")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("message_id", message.MessageID)

	ctx, cancel := context.WithTimeout(ctx, perMessageTimeout)
	defer cancel()

	if message.MessageID == "" {
		report.Failures = append(report.Failures, dto.IngestionFailure{
			Stage:  "validate",
			Reason: "message has no Message-ID",
		})
		return
	}

	existing, err := s.emailLogRepository.GetByMessageID(ctx, message.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		report.Failures = append(report.Failures, dto.IngestionFailure{
			MessageID: message.MessageID,
			Stage:     "dedupe",
			Reason:    err.Error(),
		})
		return
	}
	if existing != nil {
		report.SkippedDuplicates++
		s.markSeen(ctx, message.UID)
		return
	}

	log := &models.EmailLog{
		MessageID:     message.MessageID,
		SourceUID:     message.UID,
		SenderAddress: cleanSenderAddress(message.SenderAddress),
		Subject:       message.Subject,
		ReceivedAt:    message.ReceivedAt,
		RoleOfInbox:   message.RoleOfInbox,
	}

	id, err := s.emailLogRepository.Create(ctx, log)
	if errors.Is(err, mterrors.ErrDuplicateMessage) {
		// Lost a race with a concurrent run
		report.SkippedDuplicates++
		s.markSeen(ctx, message.UID)
		return
	}
	if err != nil {
		tracing.TraceErr(span, err)
		report.Failures = append(report.Failures, dto.IngestionFailure{
			MessageID: message.MessageID,
			Stage:     "create",
			Reason:    err.Error(),
		})
		return
	}
	log.ID = id
	report.Created++
	tracing.TagEmail(span, id)

	// The log row is durable; the source may now forget the message
	s.markSeen(ctx, message.UID)

	if err := s.parser.Process(ctx, log, message.Raw); err != nil {
		tracing.TraceErr(span, err)
		report.Failures = append(report.Failures, dto.IngestionFailure{
			MessageID: message.MessageID,
			Stage:     "parse",
			Reason:    err.Error(),
		})
	}
}

func (s *ingestionService) markSeen(ctx context.Context, uid uint32) {
	if err := s.mailSource.MarkSeen(ctx, uid); err != nil {
		s.log.Warnf("Failed to mark message %d seen: %v", uid, err)
	}
}

// cleanSenderAddress normalizes the address when it parses; an address
// that fails validation is kept verbatim rather than dropped, the log
// must still record where the message came from.
func cleanSenderAddress(address string) string {
	if address == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid {
		return validation.CleanEmail
	}
	return address
}
