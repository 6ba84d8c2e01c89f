package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/enquira/mailtriage/config"
	"github.com/enquira/mailtriage/internal/database"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/repository"
	"github.com/enquira/mailtriage/server"
	"github.com/enquira/mailtriage/services"
)

func usage() {
	fmt.Println("Usage: mailtriage <command>")
	fmt.Println("Commands:")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  server    Start the application server")
	fmt.Println("  fetch     Run one ingestion pass and exit")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":

		err := repository.MigrateDB(db)
		if err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "server":

		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Println("MailTriage starting up...")

		srv, err := server.NewServer(cfg, db)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}

		err = srv.Run()
		if err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}

		log.Println("Shutdown complete")

	case "fetch":

		appLogger := logger.NewAppLogger(cfg.Logger)
		appLogger.InitLogger()

		repos := repository.InitRepositories(db)
		svcs, err := services.InitServices(cfg, appLogger, repos)
		if err != nil {
			log.Fatalf("Service setup failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report, err := svcs.IngestionService.Run(ctx)
		if err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		log.Printf("Ingestion finished: fetched=%d created=%d duplicates=%d failures=%d",
			report.Fetched, report.Created, report.SkippedDuplicates, len(report.Failures))

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}
