package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/enquira/mailtriage/internal/database"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *database.DatabaseConfig
	IMAPConfig     *IMAPConfig
	AIConfig       *AIConfig
	R2Storage      *R2StorageConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &database.DatabaseConfig{},
		IMAPConfig:     &IMAPConfig{},
		AIConfig:       &AIConfig{},
		R2Storage:      &R2StorageConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailtriage config: %v", err)
	}

	return config, nil
}
