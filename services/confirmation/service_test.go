package confirmation

import (
	"context"
	"sync"
	"testing"
	"time"

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

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishEmailLogUpdated(ctx context.Context, emailID string, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emailID+":"+status)
}

func (f *fakePublisher) Close() error { return nil }

func seedEmail(t *testing.T, repo *repository.InMemoryEmailLogRepository, attachments models.AttachmentList) string {
	t.Helper()
	ctx := context.Background()

	id, err := repo.Create(ctx, &models.EmailLog{
		MessageID:  "confirm-" + time.Now().Format("150405.000000000") + "@mail.example.com",
		Subject:    "Quotation request",
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, enum.StatusReceived, enum.StatusParsing, ""))
	require.NoError(t, repo.SetParsedAttachments(ctx, id, "body", "", attachments))
	require.NoError(t, repo.UpdateStatus(ctx, id, enum.StatusParsing, enum.StatusParsed, ""))
	return id
}

func request(emailID string) dto.EmailConfirmationRequest {
	return dto.EmailConfirmationRequest{
		EmailID:              emailID,
		ProjectName:          "Pump Station Alpha",
		ProjectID:            "PRJ-001",
		IsNewEnquiry:         true,
		ConfirmedAttachments: []string{"invoice.pdf"},
	}
}

func TestConfirm_WritesMetadataAndPublishes(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	publisher := &fakePublisher{}
	svc := NewConfirmationService(repo, publisher, getLogger())

	id := seedEmail(t, repo, models.AttachmentList{
		{OriginalFilename: "invoice.pdf", Supported: true},
	})

	err := svc.Confirm(ctx, request(id))
	require.NoError(t, err)

	log, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, log.Confirmed)
	require.NotNil(t, log.ProjectName)
	assert.Equal(t, "Pump Station Alpha", *log.ProjectName)
	require.NotNil(t, log.ProjectID)
	assert.Equal(t, "PRJ-001", *log.ProjectID)
	require.NotNil(t, log.IsNewEnquiry)
	assert.True(t, *log.IsNewEnquiry)
	assert.Equal(t, []string{"invoice.pdf"}, []string(log.ConfirmedAttachments))
	require.Len(t, publisher.events, 1)
}

func TestConfirm_IsOneShot(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	svc := NewConfirmationService(repo, nil, getLogger())

	id := seedEmail(t, repo, models.AttachmentList{
		{OriginalFilename: "invoice.pdf", Supported: true},
	})

	require.NoError(t, svc.Confirm(ctx, request(id)))

	second := request(id)
	second.ProjectName = "Another Project"
	err := svc.Confirm(ctx, second)
	assert.ErrorIs(t, err, mterrors.ErrAlreadyConfirmed)

	// The first confirmation survives intact
	log, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pump Station Alpha", *log.ProjectName)
}

func TestConfirm_ValidatesRequest(t *testing.T) {
	ctx := context.Background()
	svc := NewConfirmationService(repository.NewInMemoryEmailLogRepository(), nil, getLogger())

	missing := request("")
	assert.ErrorIs(t, svc.Confirm(ctx, missing), mterrors.ErrValidation)

	noName := request("email_x")
	noName.ProjectName = "  "
	assert.ErrorIs(t, svc.Confirm(ctx, noName), mterrors.ErrValidation)

	noID := request("email_x")
	noID.ProjectID = ""
	assert.ErrorIs(t, svc.Confirm(ctx, noID), mterrors.ErrValidation)
}

func TestConfirm_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewConfirmationService(repository.NewInMemoryEmailLogRepository(), nil, getLogger())

	err := svc.Confirm(ctx, request("email_missing"))
	assert.ErrorIs(t, err, mterrors.ErrEmailLogNotFound)
}

func TestConfirm_UnknownAttachmentRejected(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	svc := NewConfirmationService(repo, nil, getLogger())

	id := seedEmail(t, repo, models.AttachmentList{
		{OriginalFilename: "invoice.pdf", Supported: true},
	})

	req := request(id)
	req.ConfirmedAttachments = []string{"invoice.pdf", "phantom.xlsx"}
	err := svc.Confirm(ctx, req)
	assert.ErrorIs(t, err, mterrors.ErrValidation)

	log, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, log.Confirmed)
}

func TestConfirm_TrimsAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryEmailLogRepository()
	svc := NewConfirmationService(repo, nil, getLogger())

	id := seedEmail(t, repo, models.AttachmentList{
		{OriginalFilename: "a.pdf", Supported: true},
		{OriginalFilename: "b.pdf", Supported: true},
	})

	req := dto.EmailConfirmationRequest{
		EmailID:              id,
		ProjectName:          "  Pump Station Alpha  ",
		ProjectID:            " PRJ-001 ",
		ConfirmedAttachments: []string{"b.pdf", "a.pdf", "b.pdf"},
	}
	require.NoError(t, svc.Confirm(ctx, req))

	log, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pump Station Alpha", *log.ProjectName)
	assert.Equal(t, "PRJ-001", *log.ProjectID)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, []string(log.ConfirmedAttachments))
}
