package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/internal/enum"
	mterrors "github.com/enquira/mailtriage/internal/errors"
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

type fakeAI struct {
	mu           sync.Mutex
	analyzeCalls int
	analyzeErr   error
	summary      string
	projectID    string
	lastContext  dto.AttachmentAnalysisContext

	// When set, AnalyzeAttachments signals startedOnce and blocks until
	// release closes, so tests can hold an analysis in flight.
	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
}

func (f *fakeAI) SummarizeEmail(ctx context.Context, body, subject, sender string) (string, error) {
	return f.summary, nil
}

func (f *fakeAI) ExtractProjectID(ctx context.Context, body, subject string) (string, error) {
	return f.projectID, nil
}

func (f *fakeAI) AnalyzeAttachments(ctx context.Context, request dto.AttachmentAnalysisContext) (*dto.AttachmentAnalysisResult, error) {
	f.mu.Lock()
	f.analyzeCalls++
	f.lastContext = request
	f.mu.Unlock()

	if f.started != nil {
		f.startedOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &dto.AttachmentAnalysisResult{
		Summary:      "Technical proposal for a pump station",
		DocumentType: "PDF Document",
		KeyPoints:    []string{"flow rate 120 l/s"},
	}, nil
}

func (f *fakeAI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeCalls
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
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
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type testEnv struct {
	emailLogs *repository.InMemoryEmailLogRepository
	results   *repository.InMemoryAnalysisResultRepository
	ai        *fakeAI
	storage   *fakeStorage
	svc       *analysisService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		emailLogs: repository.NewInMemoryEmailLogRepository(),
		results:   repository.NewInMemoryAnalysisResultRepository(),
		ai:        &fakeAI{summary: "Customer asks for a quotation", projectID: "PRJ-7"},
		storage:   newFakeStorage(),
	}
	env.svc = NewAnalysisService(env.emailLogs, env.results, env.ai, env.storage, nil, getLogger()).(*analysisService)
	return env
}

// seedParsedEmail creates a PARSED email log whose supported
// attachments have retrievable stored bytes.
func (e *testEnv) seedParsedEmail(t *testing.T, attachments models.AttachmentList) string {
	t.Helper()
	ctx := context.Background()

	id, err := e.emailLogs.Create(ctx, &models.EmailLog{
		MessageID:     "seed-" + time.Now().Format("150405.000000000") + "@mail.example.com",
		SenderAddress: "customer@example.com",
		Subject:       "Re: Pump station quotation",
		ReceivedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	for i := range attachments {
		if attachments[i].Supported && attachments[i].StorageKey != "" {
			require.NoError(t, e.storage.Upload(ctx, attachments[i].StorageKey, []byte("attachment body text"), "text/plain"))
		}
	}

	require.NoError(t, e.emailLogs.UpdateStatus(ctx, id, enum.StatusReceived, enum.StatusParsing, ""))
	require.NoError(t, e.emailLogs.SetParsedAttachments(ctx, id, "Please quote the attached documents.", "", attachments))
	require.NoError(t, e.emailLogs.UpdateStatus(ctx, id, enum.StatusParsing, enum.StatusParsed, ""))
	return id
}

func pdfAttachment(filename string, emailKey string) models.Attachment {
	return models.Attachment{
		OriginalFilename: filename,
		Extension:        "pdf",
		ContentType:      "application/pdf",
		Size:             1024,
		Supported:        true,
		Icon:             "📄",
		Category:         "PDF Document",
		StorageKey:       emailKey + "/" + filename,
	}
}

func TestAnalyze_HappyPath(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k1")})

	result, err := env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Technical proposal for a pump station", result.Summary)
	assert.Empty(t, result.AttachmentErrors)

	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusComplete, log.Status)

	stored, err := env.results.GetByRequestKey(ctx, id+"|spec.pdf")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, id, stored.EmailID)
	assert.Equal(t, []string{"flow rate 120 l/s"}, []string(stored.KeyPoints))
}

func TestAnalyze_FillsSuggestions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k2")})

	_, err := env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	require.NoError(t, err)

	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Customer asks for a quotation", log.EmailSummary)
	assert.Equal(t, "PRJ-7", log.SuggestedProjectID)
	// Reply prefixes are stripped from the suggested name
	assert.Equal(t, "Pump station quotation", log.SuggestedProjectName)
	// Never the confirmed columns
	assert.Nil(t, log.ProjectID)
	assert.False(t, log.Confirmed)
}

func TestAnalyze_ValidationAndLookupErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Analyze(ctx, "", []string{"spec.pdf"})
	assert.ErrorIs(t, err, mterrors.ErrValidation)

	_, err = env.svc.Analyze(ctx, "email_x", nil)
	assert.ErrorIs(t, err, mterrors.ErrValidation)

	_, err = env.svc.Analyze(ctx, "email_missing", []string{"spec.pdf"})
	assert.ErrorIs(t, err, mterrors.ErrEmailLogNotFound)
}

func TestAnalyze_RejectsUnparsedEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id, err := env.emailLogs.Create(ctx, &models.EmailLog{
		MessageID:  "unparsed@mail.example.com",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	assert.ErrorIs(t, err, mterrors.ErrEmailNotAnalyzable)
	assert.Equal(t, 0, env.ai.calls())
}

func TestAnalyze_RejectsUnknownAndUnsupportedAttachments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	unsupported := models.Attachment{
		OriginalFilename: "photo.png",
		Extension:        "png",
		ContentType:      "image/png",
		Supported:        false,
		Icon:             "📎",
		Category:         "Unsupported",
	}
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k3"), unsupported})

	_, err := env.svc.Analyze(ctx, id, []string{"other.pdf"})
	assert.ErrorIs(t, err, mterrors.ErrInvalidAttachment)

	_, err = env.svc.Analyze(ctx, id, []string{"photo.png"})
	assert.ErrorIs(t, err, mterrors.ErrInvalidAttachment)

	// A rejected request never claims the email
	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusParsed, log.Status)
	assert.Equal(t, 0, env.ai.calls())
}

func TestAnalyze_ConcurrentIdenticalRequestsShareOneRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.ai.started = make(chan struct{})
	env.ai.release = make(chan struct{})
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k4")})

	var wg sync.WaitGroup
	results := make([]*dto.AttachmentAnalysisResult, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	}()

	// Hold the first run inside the model call, then issue the same
	// request again; it must join the in-flight run
	<-env.ai.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	}()
	time.Sleep(50 * time.Millisecond)
	close(env.ai.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, env.ai.calls())
	assert.Equal(t, results[0], results[1])
}

func TestAnalyze_FilenameOrderDoesNotChangeTheKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.seedParsedEmail(t, models.AttachmentList{
		pdfAttachment("a.pdf", "k5"),
		pdfAttachment("b.pdf", "k5"),
	})

	_, err := env.svc.Analyze(ctx, id, []string{"b.pdf", "a.pdf", "a.pdf"})
	require.NoError(t, err)

	stored, err := env.results.GetByRequestKey(ctx, id+"|a.pdf,b.pdf")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestAnalyze_DifferentSubsetsRunIndependently(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.seedParsedEmail(t, models.AttachmentList{
		pdfAttachment("a.pdf", "k6"),
		pdfAttachment("b.pdf", "k6"),
	})

	_, err := env.svc.Analyze(ctx, id, []string{"a.pdf"})
	require.NoError(t, err)

	// The email is COMPLETE now; a different subset still analyzes
	_, err = env.svc.Analyze(ctx, id, []string{"b.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 2, env.ai.calls())
	results, err := env.results.ListByEmail(ctx, id)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusComplete, log.Status)
}

func TestAnalyze_PartialAttachmentFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	unreadable := pdfAttachment("ghost.pdf", "k7")
	unreadable.StorageKey = ""
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k7"), unreadable})

	result, err := env.svc.Analyze(ctx, id, []string{"spec.pdf", "ghost.pdf"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.AttachmentErrors, "ghost.pdf")

	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusComplete, log.Status)

	stored, err := env.results.GetByRequestKey(ctx, id+"|ghost.pdf,spec.pdf")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Contains(t, stored.AttachmentErrors, "ghost.pdf")
}

func TestAnalyze_AllAttachmentsUnreadableFailsAnalysis(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	unreadable := pdfAttachment("ghost.pdf", "k8")
	unreadable.StorageKey = ""
	id := env.seedParsedEmail(t, models.AttachmentList{unreadable})

	_, err := env.svc.Analyze(ctx, id, []string{"ghost.pdf"})
	assert.ErrorIs(t, err, mterrors.ErrUpstreamFailure)
	assert.Equal(t, 0, env.ai.calls())

	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusFailedAnalysis, log.Status)
	assert.NotEmpty(t, log.ErrorMessage)
}

func TestAnalyze_ModelFailureFailsAnalysis(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.ai.analyzeErr = errors.Wrap(mterrors.ErrUpstreamTimeout, "model call")
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k9")})

	_, err := env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	assert.ErrorIs(t, err, mterrors.ErrUpstreamTimeout)

	log, err := env.emailLogs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusFailedAnalysis, log.Status)
}

func TestAnalyze_EmailContextReachesTheModel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.seedParsedEmail(t, models.AttachmentList{pdfAttachment("spec.pdf", "k10")})

	_, err := env.svc.Analyze(ctx, id, []string{"spec.pdf"})
	require.NoError(t, err)

	assert.Contains(t, env.ai.lastContext.EmailContext, "customer@example.com")
	assert.Contains(t, env.ai.lastContext.EmailContext, "Re: Pump station quotation")
	assert.Equal(t, "attachment body text", env.ai.lastContext.AttachmentContents["spec.pdf"])
}

func TestIsTextual(t *testing.T) {
	assert.True(t, isTextual("text/plain", []byte{0xFF, 0xFE}))
	assert.True(t, isTextual("application/octet-stream", []byte("plain utf8 payload")))
	assert.False(t, isTextual("application/pdf", []byte{0xFF, 0xD8, 0xFF}))
	assert.False(t, isTextual("application/pdf", nil))
}
