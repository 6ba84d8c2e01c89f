package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/tracing"
)

const ingestionRunTimeout = 5 * time.Minute

// FetchEmails triggers an ingestion run and returns immediately; the
// run itself completes in the background and clients observe progress
// through the log list.
func FetchEmails(ingestionService interfaces.IngestionService, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		parentSpan := opentracing.SpanFromContext(c.Request.Context())

		go func() {
			defer tracing.RecoverAndLogToJaeger(log)

			ctx, cancel := context.WithTimeout(context.Background(), ingestionRunTimeout)
			defer cancel()
			if parentSpan != nil {
				ctx = opentracing.ContextWithSpan(ctx, parentSpan)
			}

			report, err := ingestionService.Run(ctx)
			if err != nil {
				log.Errorf("Ingestion run failed: %v", err)
				return
			}
			log.Infof("Ingestion run finished: %d fetched, %d created", report.Fetched, report.Created)
		}()

		c.JSON(http.StatusOK, gin.H{
			"message": "email fetch started",
		})
	}
}
