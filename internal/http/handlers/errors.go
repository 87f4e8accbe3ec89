// Package handlers defines the error codes returned in ErrorResponse.Code.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeStatsFailed = "stats_failed"
)
