package errors

import "github.com/pkg/errors"

var (
	// store errors
	ErrEmailLogNotFound   = errors.New("email log not found")
	ErrStatusConflict     = errors.New("email status changed concurrently")
	ErrDuplicateMessage   = errors.New("message already ingested")
	ErrAttachmentsWritten = errors.New("parsed attachments already recorded")

	// confirmation errors
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	ErrValidation       = errors.New("invalid request")

	// analysis errors
	ErrInvalidAttachment  = errors.New("attachment unknown or unsupported")
	ErrAnalysisInProgress = errors.New("identical analysis already in progress")
	ErrEmailNotAnalyzable = errors.New("email not in an analyzable state")

	// upstream errors
	ErrUpstreamFailure = errors.New("upstream call failed")
	ErrUpstreamTimeout = errors.New("upstream call timed out")
)
