package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apierrors "github.com/enquira/mailtriage/api/errors"
	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
	mterrors "github.com/enquira/mailtriage/internal/errors"
)

// ListEmailLogs returns email log summaries, newest first
func ListEmailLogs(emailLogRepository interfaces.EmailLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		logs, err := emailLogRepository.List(c.Request.Context(), limit, offset)
		if err != nil {
			apierrors.RespondError(c, err)
			return
		}

		summaries := make([]dto.EmailLogSummary, 0, len(logs))
		for _, log := range logs {
			summaries = append(summaries, dto.MapEmailLogToSummary(log))
		}
		c.JSON(http.StatusOK, summaries)
	}
}

// GetEmailLog returns one full email log including parsed attachments
func GetEmailLog(emailLogRepository interfaces.EmailLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		log, err := emailLogRepository.GetByID(c.Request.Context(), id)
		if err != nil {
			apierrors.RespondError(c, err)
			return
		}
		if log == nil {
			apierrors.RespondError(c, mterrors.ErrEmailLogNotFound)
			return
		}

		c.JSON(http.StatusOK, dto.MapEmailLogToDetails(log))
	}
}
