package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/enum"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/repository"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeMailSource struct {
	messages  []*interfaces.RawMessage
	fetchErr  error
	seenUIDs  []uint32
	seenErr   error
	fetchRuns int
}

func (f *fakeMailSource) FetchUnread(ctx context.Context) ([]*interfaces.RawMessage, error) {
	f.fetchRuns++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.messages, nil
}

func (f *fakeMailSource) MarkSeen(ctx context.Context, uid uint32) error {
	if f.seenErr != nil {
		return f.seenErr
	}
	f.seenUIDs = append(f.seenUIDs, uid)
	return nil
}

type fakeParser struct {
	processed []string
	failFor   map[string]error
}

func (f *fakeParser) Parse(ctx context.Context, raw []byte) (models.AttachmentList, string, string, error) {
	return nil, "", "", nil
}

func (f *fakeParser) Process(ctx context.Context, log *models.EmailLog, raw []byte) error {
	f.processed = append(f.processed, log.ID)
	if err, ok := f.failFor[log.MessageID]; ok {
		return err
	}
	return nil
}

func rawMessage(messageID string, uid uint32) *interfaces.RawMessage {
	return &interfaces.RawMessage{
		MessageID:     messageID,
		UID:           uid,
		SenderAddress: "sender@example.com",
		Subject:       "Quotation request",
		ReceivedAt:    time.Now().UTC(),
		RoleOfInbox:   enum.RoleTo,
		Raw:           []byte("From: sender@example.com\r\n\r\nhello"),
	}
}

func TestIngestion_CreatesLogsAndMarksSeen(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	source := &fakeMailSource{messages: []*interfaces.RawMessage{
		rawMessage("first@mail.example.com", 11),
		rawMessage("second@mail.example.com", 12),
	}}
	parser := &fakeParser{}
	svc := NewIngestionService(repo, source, parser, getLogger())

	report, err := svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.SkippedDuplicates)
	assert.Empty(t, report.Failures)
	assert.ElementsMatch(t, []uint32{11, 12}, source.seenUIDs)
	assert.Len(t, parser.processed, 2)

	logs, err := repo.List(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestIngestion_SecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	source := &fakeMailSource{messages: []*interfaces.RawMessage{
		rawMessage("repeat@mail.example.com", 7),
	}}
	parser := &fakeParser{}
	svc := NewIngestionService(repo, source, parser, getLogger())

	first, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	// The source returns the same message again, as it would when a
	// MarkSeen was lost
	second, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.SkippedDuplicates)

	logs, err := repo.List(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestIngestion_MissingMessageIDIsRecorded(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	source := &fakeMailSource{messages: []*interfaces.RawMessage{
		rawMessage("", 3),
		rawMessage("valid@mail.example.com", 4),
	}}
	parser := &fakeParser{}
	svc := NewIngestionService(repo, source, parser, getLogger())

	report, err := svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "validate", report.Failures[0].Stage)
	// The malformed message is never marked seen
	assert.Equal(t, []uint32{4}, source.seenUIDs)
}

func TestIngestion_ParseFailureDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	source := &fakeMailSource{messages: []*interfaces.RawMessage{
		rawMessage("broken@mail.example.com", 1),
		rawMessage("fine@mail.example.com", 2),
	}}
	parser := &fakeParser{failFor: map[string]error{
		"broken@mail.example.com": errors.New("decode message: malformed"),
	}}
	svc := NewIngestionService(repo, source, parser, getLogger())

	report, err := svc.Run(ctx)
	require.NoError(t, err)

	// Both logs exist; one parse failure is reported
	assert.Equal(t, 2, report.Created)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "parse", report.Failures[0].Stage)
	assert.Equal(t, "broken@mail.example.com", report.Failures[0].MessageID)
	assert.Len(t, parser.processed, 2)
}

func TestIngestion_FetchErrorPropagates(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	source := &fakeMailSource{fetchErr: errors.New("imap: connection refused")}
	svc := NewIngestionService(repo, source, &fakeParser{}, getLogger())

	report, err := svc.Run(ctx)
	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestIngestion_MarkSeenAfterDurableCreate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	source := &fakeMailSource{messages: []*interfaces.RawMessage{
		rawMessage("durable@mail.example.com", 42),
	}}
	parser := &fakeParser{}
	svc := NewIngestionService(repo, source, parser, getLogger())

	_, err := svc.Run(ctx)
	require.NoError(t, err)

	log, err := repo.GetByMessageID(ctx, "durable@mail.example.com")
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, []uint32{42}, source.seenUIDs)
	assert.Equal(t, uint32(42), log.SourceUID)
}

func TestCleanSenderAddress(t *testing.T) {
	assert.Equal(t, "", cleanSenderAddress(""))
	assert.Equal(t, "sender@example.com", cleanSenderAddress("sender@example.com"))
	// Unparseable input is kept verbatim
	assert.Equal(t, "not an address", cleanSenderAddress("not an address"))
}
