package repository

import (
	"gorm.io/gorm"

	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/models"
)

type Repositories struct {
	EmailLogRepository       interfaces.EmailLogRepository
	AnalysisResultRepository interfaces.AnalysisResultRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		EmailLogRepository:       NewEmailLogRepository(db),
		AnalysisResultRepository: NewAnalysisResultRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.EmailLog{},
		&models.AnalysisResult{},
	)
}
