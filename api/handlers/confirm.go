package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/enquira/mailtriage/api/errors"
	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
)

// ConfirmEmail records the one-shot human sign-off for an email.
func ConfirmEmail(confirmationService interfaces.ConfirmationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request dto.EmailConfirmationRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.RespondValidation(c, err)
			return
		}

		if err := confirmationService.Confirm(c.Request.Context(), request); err != nil {
			apierrors.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{})
	}
}
