package services

import (
	"github.com/enquira/mailtriage/config"
	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/repository"
	"github.com/enquira/mailtriage/services/ai"
	"github.com/enquira/mailtriage/services/analysis"
	"github.com/enquira/mailtriage/services/confirmation"
	"github.com/enquira/mailtriage/services/events"
	"github.com/enquira/mailtriage/services/ingestion"
	"github.com/enquira/mailtriage/services/mailsource"
	"github.com/enquira/mailtriage/services/parser"
	"github.com/enquira/mailtriage/services/storage"
)

type Services struct {
	EventPublisher      interfaces.EventPublisher
	StorageService      interfaces.StorageService
	AIService           interfaces.AIService
	MailSource          interfaces.MailSource
	ParserService       interfaces.ParserService
	IngestionService    interfaces.IngestionService
	AnalysisService     interfaces.AnalysisService
	ConfirmationService interfaces.ConfirmationService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events are optional; without a broker the workflow still runs,
	// UI clients just fall back to polling
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		var err error
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
	}

	attachmentStorage := storage.NewR2StorageService(
		cfg.R2Storage.AccountID,
		cfg.R2Storage.AccessKeyID,
		cfg.R2Storage.AccessKeySecret,
		cfg.R2Storage.AttachmentBucket,
	)

	aiService := ai.NewAIService(cfg.AIConfig)
	mailSource := mailsource.NewIMAPSource(cfg.IMAPConfig, log)
	parserService := parser.NewParserService(repos.EmailLogRepository, attachmentStorage, publisher, log)

	services := Services{
		EventPublisher: publisher,
		StorageService: attachmentStorage,
		AIService:      aiService,
		MailSource:     mailSource,
		ParserService:  parserService,
		IngestionService: ingestion.NewIngestionService(
			repos.EmailLogRepository,
			mailSource,
			parserService,
			log,
		),
		AnalysisService: analysis.NewAnalysisService(
			repos.EmailLogRepository,
			repos.AnalysisResultRepository,
			aiService,
			attachmentStorage,
			publisher,
			log,
		),
		ConfirmationService: confirmation.NewConfirmationService(
			repos.EmailLogRepository,
			publisher,
			log,
		),
	}

	return &services, nil
}
