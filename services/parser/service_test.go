package parser

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.Errorf("object %s not found", key)
	}
	return data, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	return nil
}

// multipartMessage builds an RFC 822 message with a text body, a PDF
// attachment and a plain text attachment.
func multipartMessage() []byte {
	lines := []string{
		"From: customer@example.com",
		"To: enquiries@example.com",
		"Subject: Quotation request",
		"Message-ID: <mime-test@mail.example.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="test-boundary"`,
		"",
		"--test-boundary",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Please find the documents attached.",
		"--test-boundary",
		`Content-Type: application/pdf; name="invoice.pdf"`,
		`Content-Disposition: attachment; filename="invoice.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQKJcTl8uXrCg==",
		"--test-boundary",
		`Content-Type: text/plain; name="notes.txt"`,
		`Content-Disposition: attachment; filename="notes.txt"`,
		"",
		"meeting notes",
		"--test-boundary--",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func htmlOnlyMessage() []byte {
	lines := []string{
		"From: customer@example.com",
		"To: enquiries@example.com",
		"Subject: HTML only",
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset=utf-8`,
		"",
		"<html><head><style>p{color:red}</style></head>",
		"<body><p>Hello from the browser</p><script>alert(1)</script></body></html>",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

// A multipart content type without a boundary cannot be decoded.
func undecodableMessage() []byte {
	lines := []string{
		"From: customer@example.com",
		"Subject: broken",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed",
		"",
		"orphaned body",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func seedReceivedEmail(t *testing.T, repo *repository.InMemoryEmailLogRepository) *models.EmailLog {
	t.Helper()
	log := &models.EmailLog{
		MessageID:     "parser-" + time.Now().Format("150405.000000000") + "@mail.example.com",
		SenderAddress: "customer@example.com",
		Subject:       "Quotation request",
		ReceivedAt:    time.Now().UTC(),
	}
	id, err := repo.Create(context.Background(), log)
	require.NoError(t, err)
	log.ID = id
	return log
}

func TestParse_ClassifiesAttachments(t *testing.T) {
	ctx := context.Background()
	svc := NewParserService(repository.NewInMemoryEmailLogRepository(), newFakeStorage(), nil, getLogger())

	attachments, body, _, err := svc.Parse(ctx, multipartMessage())
	require.NoError(t, err)
	assert.Contains(t, body, "Please find the documents attached.")
	require.Len(t, attachments, 2)

	byName := make(map[string]models.Attachment)
	for _, a := range attachments {
		byName[a.OriginalFilename] = a
	}

	pdf := byName["invoice.pdf"]
	assert.Equal(t, "pdf", pdf.Extension)
	assert.True(t, pdf.Supported)
	assert.Equal(t, "📄", pdf.Icon)
	assert.Equal(t, "PDF Document", pdf.Category)
	assert.NotZero(t, pdf.Size)

	txt := byName["notes.txt"]
	assert.False(t, txt.Supported)
	assert.Equal(t, "📎", txt.Icon)
	assert.Equal(t, "Unsupported", txt.Category)
}

func TestParse_HTMLBodyFallsBackToPlainText(t *testing.T) {
	ctx := context.Background()
	svc := NewParserService(repository.NewInMemoryEmailLogRepository(), newFakeStorage(), nil, getLogger())

	_, body, bodyHTML, err := svc.Parse(ctx, htmlOnlyMessage())
	require.NoError(t, err)
	assert.Contains(t, bodyHTML, "<p>")
	assert.Contains(t, body, "Hello from the browser")
	assert.NotContains(t, body, "alert(1)")
	assert.NotContains(t, body, "color:red")
}

func TestProcess_TransitionsToParsedAndStoresAttachments(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	storage := newFakeStorage()
	svc := NewParserService(repo, storage, nil, getLogger())
	log := seedReceivedEmail(t, repo)

	err := svc.Process(ctx, log, multipartMessage())
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusParsed, stored.Status)
	assert.Contains(t, stored.Body, "Please find the documents attached.")
	require.Len(t, stored.ParsedAttachments, 2)

	pdf := stored.Attachment("invoice.pdf")
	require.NotNil(t, pdf)
	assert.Equal(t, log.ID+"/invoice.pdf", pdf.StorageKey)
	_, err = storage.Download(ctx, pdf.StorageKey)
	assert.NoError(t, err)

	// Unsupported attachments are recorded but their bytes are not kept
	txt := stored.Attachment("notes.txt")
	require.NotNil(t, txt)
	assert.Empty(t, txt.StorageKey)
	_, err = storage.Download(ctx, log.ID+"/notes.txt")
	assert.Error(t, err)
}

func TestProcess_UndecodableMessageFailsParsing(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	svc := NewParserService(repo, newFakeStorage(), nil, getLogger())
	log := seedReceivedEmail(t, repo)

	err := svc.Process(ctx, log, undecodableMessage())
	require.Error(t, err)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusFailedParsing, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "message could not be decoded")
}

func TestProcess_RequiresReceivedState(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	svc := NewParserService(repo, newFakeStorage(), nil, getLogger())
	log := seedReceivedEmail(t, repo)

	require.NoError(t, svc.Process(ctx, log, multipartMessage()))

	// A second delivery of the same raw message cannot re-enter parsing
	err := svc.Process(ctx, log, multipartMessage())
	require.Error(t, err)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusParsed, stored.Status)
}

func TestProcess_UploadFailureDowngradesAttachmentOnly(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	storage := newFakeStorage()
	storage.uploadErr = errors.New("bucket unavailable")
	svc := NewParserService(repo, storage, nil, getLogger())
	log := seedReceivedEmail(t, repo)

	err := svc.Process(ctx, log, multipartMessage())
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusParsed, stored.Status)

	pdf := stored.Attachment("invoice.pdf")
	require.NotNil(t, pdf)
	assert.False(t, pdf.Supported)
	assert.Empty(t, pdf.StorageKey)
	assert.Contains(t, pdf.AnalysisError, "could not be stored")
}

func TestHTMLToPlainText(t *testing.T) {
	text, err := HTMLToPlainText(`<html><body><h1>Title</h1><p>First line</p><script>var x = 1;</script></body></html>`)
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "First line")
	assert.NotContains(t, text, "var x")
}
