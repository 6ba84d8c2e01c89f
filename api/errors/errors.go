package errors

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	mterrors "github.com/enquira/mailtriage/internal/errors"
)

// ErrorResponse is the envelope every failed request returns. Clients
// surface Detail verbatim to the operator.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RespondError writes the error envelope with the HTTP status that
// matches the error kind.
func RespondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), ErrorResponse{Detail: err.Error()})
}

// RespondValidation reports a malformed request body.
func RespondValidation(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
}

// StatusFor maps workflow errors onto HTTP statuses: 400 validation,
// 404 not-found, 409 conflict, 502 upstream failure, 504 timeout.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, mterrors.ErrValidation),
		errors.Is(err, mterrors.ErrInvalidAttachment),
		errors.Is(err, mterrors.ErrEmailNotAnalyzable):
		return http.StatusBadRequest
	case errors.Is(err, mterrors.ErrEmailLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, mterrors.ErrStatusConflict),
		errors.Is(err, mterrors.ErrAlreadyConfirmed),
		errors.Is(err, mterrors.ErrAnalysisInProgress),
		errors.Is(err, mterrors.ErrDuplicateMessage),
		errors.Is(err, mterrors.ErrAttachmentsWritten):
		return http.StatusConflict
	case errors.Is(err, mterrors.ErrUpstreamTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, mterrors.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
