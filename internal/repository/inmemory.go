package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/lib/pq"

	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/enum"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/models"
	"github.com/enquira/mailtriage/internal/utils"
)

// InMemoryEmailLogRepository mirrors the postgres repository semantics,
// including the compare-and-swap status transition and the one-shot
// attachment and confirmation writes. Used by tests and local runs
// without a database.
type InMemoryEmailLogRepository struct {
	mu   sync.Mutex
	logs map[string]*models.EmailLog
}

func NewInMemoryEmailLogRepository() *InMemoryEmailLogRepository {
	return &InMemoryEmailLogRepository{
		logs: make(map[string]*models.EmailLog),
	}
}

var _ interfaces.EmailLogRepository = (*InMemoryEmailLogRepository)(nil)

func (r *InMemoryEmailLogRepository) Create(ctx context.Context, log *models.EmailLog) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if log == nil {
		return "", mterrors.ErrValidation
	}

	if log.MessageID != "" {
		log.MessageID = utils.NormalizeMessageID(log.MessageID)
	}

	for _, existing := range r.logs {
		if existing.MessageID == log.MessageID {
			return existing.ID, mterrors.ErrDuplicateMessage
		}
	}

	if log.ID == "" {
		log.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	if log.Status == "" {
		log.Status = enum.StatusReceived
	}
	log.CreatedAt = utils.Now()
	log.StatusUpdatedAt = log.CreatedAt

	stored := *log
	r.logs[log.ID] = &stored
	return log.ID, nil
}

func (r *InMemoryEmailLogRepository) GetByID(ctx context.Context, id string) (*models.EmailLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.logs[id]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (r *InMemoryEmailLogRepository) GetByMessageID(ctx context.Context, messageID string) (*models.EmailLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messageID = utils.NormalizeMessageID(messageID)
	for _, stored := range r.logs {
		if stored.MessageID == messageID {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *InMemoryEmailLogRepository) List(ctx context.Context, limit, offset int) ([]*models.EmailLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	all := make([]*models.EmailLog, 0, len(r.logs))
	for _, stored := range r.logs {
		copied := *stored
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ReceivedAt.After(all[j].ReceivedAt)
	})

	if offset >= len(all) {
		return []*models.EmailLog{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *InMemoryEmailLogRepository) UpdateStatus(ctx context.Context, id string, from, to enum.ProcessingStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.logs[id]
	if !ok {
		return mterrors.ErrEmailLogNotFound
	}
	if stored.Status != from {
		return mterrors.ErrStatusConflict
	}

	stored.Status = to
	stored.StatusUpdatedAt = utils.Now()
	stored.UpdatedAt = stored.StatusUpdatedAt
	if reason != "" {
		stored.ErrorMessage = reason
	}
	return nil
}

func (r *InMemoryEmailLogRepository) SetParsedAttachments(ctx context.Context, id, body, bodyHTML string, attachments models.AttachmentList) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.logs[id]
	if !ok {
		return mterrors.ErrEmailLogNotFound
	}
	if stored.ParsedAttachments != nil {
		return mterrors.ErrAttachmentsWritten
	}

	stored.Body = body
	stored.BodyHTML = bodyHTML
	stored.ParsedAttachments = attachments
	stored.UpdatedAt = utils.Now()
	return nil
}

func (r *InMemoryEmailLogRepository) SetEmailSummary(ctx context.Context, id, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.logs[id]
	if !ok {
		return mterrors.ErrEmailLogNotFound
	}
	stored.EmailSummary = summary
	stored.UpdatedAt = utils.Now()
	return nil
}

func (r *InMemoryEmailLogRepository) SetSuggestions(ctx context.Context, id string, projectName, projectID string, newEnquiry *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.logs[id]
	if !ok {
		return mterrors.ErrEmailLogNotFound
	}
	if projectName != "" {
		stored.SuggestedProjectName = projectName
	}
	if projectID != "" {
		stored.SuggestedProjectID = projectID
	}
	if newEnquiry != nil {
		stored.SuggestedNewEnquiry = newEnquiry
	}
	stored.UpdatedAt = utils.Now()
	return nil
}

func (r *InMemoryEmailLogRepository) ApplyConfirmation(ctx context.Context, id string, confirmation models.Confirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.logs[id]
	if !ok {
		return mterrors.ErrEmailLogNotFound
	}
	if stored.Confirmed {
		return mterrors.ErrAlreadyConfirmed
	}

	now := utils.Now()
	stored.ProjectName = &confirmation.ProjectName
	stored.ProjectID = &confirmation.ProjectID
	stored.IsNewEnquiry = &confirmation.IsNewEnquiry
	stored.Confirmed = true
	stored.ConfirmedAt = &now
	stored.ConfirmedAttachments = pq.StringArray(confirmation.ConfirmedAttachments)
	stored.UpdatedAt = now
	return nil
}

// InMemoryAnalysisResultRepository keeps analysis outcomes keyed by
// request key, overwriting on repeat saves like the postgres upsert.
type InMemoryAnalysisResultRepository struct {
	mu      sync.Mutex
	results map[string]*models.AnalysisResult
}

func NewInMemoryAnalysisResultRepository() *InMemoryAnalysisResultRepository {
	return &InMemoryAnalysisResultRepository{
		results: make(map[string]*models.AnalysisResult),
	}
}

var _ interfaces.AnalysisResultRepository = (*InMemoryAnalysisResultRepository)(nil)

func (r *InMemoryAnalysisResultRepository) Save(ctx context.Context, result *models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if result == nil || result.RequestKey == "" {
		return mterrors.ErrValidation
	}

	if result.ID == "" {
		result.ID = utils.GenerateNanoIDWithPrefix("analysis", 16)
	}
	if existing, ok := r.results[result.RequestKey]; ok {
		result.ID = existing.ID
		result.CreatedAt = existing.CreatedAt
	} else {
		result.CreatedAt = utils.Now()
	}

	stored := *result
	r.results[result.RequestKey] = &stored
	return nil
}

func (r *InMemoryAnalysisResultRepository) GetByRequestKey(ctx context.Context, requestKey string) (*models.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.results[requestKey]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (r *InMemoryAnalysisResultRepository) ListByEmail(ctx context.Context, emailID string) ([]*models.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var results []*models.AnalysisResult
	for _, stored := range r.results {
		if stored.EmailID == emailID {
			copied := *stored
			results = append(results, &copied)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}
