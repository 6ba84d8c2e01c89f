package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/enquira/mailtriage/api/errors"
	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
)

// AnalyzeAttachments runs the AI analysis for a chosen subset of an
// email's attachments and returns the structured result.
func AnalyzeAttachments(analysisService interfaces.AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request dto.AttachmentAnalysisRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.RespondValidation(c, err)
			return
		}

		result, err := analysisService.Analyze(c.Request.Context(), request.EmailID, request.AttachmentFilenames)
		if err != nil {
			apierrors.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
