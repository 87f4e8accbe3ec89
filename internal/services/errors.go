// Package services defines the business logic of the report bot.
// This file centralizes the report-generation error taxonomy so callers can
// classify failures with errors.Is and translate them into user-facing text
// and audit outcomes in one place.
package services

import (
	"errors"

	"github.com/tbourn/go-report-bot/internal/domain"
)

var (
	// ErrEmptyQuery is returned when the first line of a query is blank.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNetwork indicates the search API could not be reached, timed out,
	// or answered with a non-success status. No retry is attempted.
	ErrNetwork = errors.New("search service unreachable")

	// ErrServiceResponse indicates the search API answered with a body that
	// is not the expected structured format.
	ErrServiceResponse = errors.New("search service returned an invalid response")

	// ErrServiceReported matches any *ServiceError.
	ErrServiceReported = errors.New("search service reported an error")
)

// ServiceError carries the search API's own error detail. Its detail is shown
// to the user verbatim.
type ServiceError struct {
	Detail string
}

func (e *ServiceError) Error() string { return "search service error: " + e.Detail }

// Is makes errors.Is(err, ErrServiceReported) true for any *ServiceError.
func (e *ServiceError) Is(target error) bool { return target == ErrServiceReported }

// UserMessage translates a Generate error into text safe to show the user.
func UserMessage(err error) string {
	var svcErr *ServiceError
	switch {
	case errors.As(err, &svcErr):
		return "An API error occurred: " + svcErr.Detail
	case errors.Is(err, ErrNetwork):
		return "A network error occurred while contacting the search service."
	case errors.Is(err, ErrServiceResponse):
		return "The search service returned an invalid response. Please try again later."
	case errors.Is(err, ErrEmptyQuery):
		return "Your query is empty. Please send an email, phone number, or username."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}

// Outcome maps a Generate result to its audit/metrics label.
func Outcome(pages int, err error) string {
	switch {
	case err == nil && pages > 0:
		return domain.OutcomeOK
	case err == nil:
		return domain.OutcomeNoResults
	case errors.Is(err, ErrEmptyQuery):
		return domain.OutcomeEmptyQuery
	case errors.Is(err, ErrNetwork):
		return domain.OutcomeNetworkError
	case errors.Is(err, ErrServiceReported):
		return domain.OutcomeServiceError
	default:
		return domain.OutcomeServiceResponseError
	}
}
