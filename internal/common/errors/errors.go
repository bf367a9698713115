// Package errors provides standardized error handling for the mandate workflow.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Client-side validation
	ErrCodeMissingProductSlug ErrorCode = "MISSING_PRODUCT_SLUG"
	ErrCodeInvalidProductSlug ErrorCode = "INVALID_PRODUCT_SLUG"
	ErrCodeInvalidIntentData  ErrorCode = "INVALID_INTENT_DATA"

	// Mandate API
	ErrCodeMandateCreateFailed  ErrorCode = "MANDATE_CREATE_FAILED"
	ErrCodeMandateApproveFailed ErrorCode = "MANDATE_APPROVE_FAILED"
	ErrCodeMandateDeclineFailed ErrorCode = "MANDATE_DECLINE_FAILED"
	ErrCodeMandateExecuteFailed ErrorCode = "MANDATE_EXECUTE_FAILED"
	ErrCodeIllegalTransition    ErrorCode = "ILLEGAL_MANDATE_TRANSITION"

	// Cards API
	ErrCodeLinkedCardsFetchFailed ErrorCode = "LINKED_CARDS_FETCH_FAILED"
	ErrCodeCatalogFetchFailed     ErrorCode = "CATALOG_FETCH_FAILED"

	// Journal
	ErrCodeJournalWriteFailed ErrorCode = "JOURNAL_WRITE_FAILED"

	// Transport
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"
	ErrCodeServerError  ErrorCode = "SERVER_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMissingProductSlugError reports a product that cannot be tracked through
// a mandate because it carries no slug. Non-retryable; no network call is made.
func NewMissingProductSlugError(productName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingProductSlug,
		Message:   "missing product slug",
		Details:   fmt.Sprintf("productName: %s", productName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidProductSlugError reports a slug that fails the slug pattern.
func NewInvalidProductSlugError(slug string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidProductSlug,
		Message:   "invalid product slug",
		Details:   fmt.Sprintf("slug: %s", slug),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidIntentDataError reports intent payload schema violations.
func NewInvalidIntentDataError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidIntentData,
		Message:   "intent payload failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMandateCreateFailedError creates a retryable mandate-creation error.
func NewMandateCreateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMandateCreateFailed,
		Message:   "Could not propose the action",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMandateApproveFailedError creates a retryable approval error.
func NewMandateApproveFailedError(mandateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMandateApproveFailed,
		Message:   "Could not approve the action",
		Details:   fmt.Sprintf("mandateId: %s, error: %s", mandateID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMandateDeclineFailedError creates a retryable decline error.
func NewMandateDeclineFailedError(mandateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMandateDeclineFailed,
		Message:   "Could not decline the action",
		Details:   fmt.Sprintf("mandateId: %s, error: %s", mandateID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMandateExecuteFailedError creates a retryable execution error. The
// mandate stays approved server-side; only the execute step failed.
func NewMandateExecuteFailedError(mandateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMandateExecuteFailed,
		Message:   "Approved, but the action could not be completed",
		Details:   fmt.Sprintf("mandateId: %s, error: %s", mandateID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIllegalTransitionError reports a state-machine precondition violation.
// Always a caller bug, never retryable.
func NewIllegalTransitionError(mandateID, from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIllegalTransition,
		Message:   "illegal mandate status transition",
		Details:   fmt.Sprintf("mandateId: %s, %s -> %s", mandateID, from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLinkedCardsFetchFailedError creates a retryable cards-list fetch error.
func NewLinkedCardsFetchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLinkedCardsFetchFailed,
		Message:   "Could not load linked cards",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogFetchFailedError creates a retryable catalog fetch error.
func NewCatalogFetchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogFetchFailed,
		Message:   "Could not load the card catalog",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewJournalWriteFailedError creates a retryable journal error. Journal
// failures are logged and surfaced but never abort the workflow.
func NewJournalWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeJournalWriteFailed,
		Message:   "Could not record mandate transition",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNetworkError,
		Message:   fmt.Sprintf("Network error during %s", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewServerError wraps a non-2xx response, keeping the server's message when
// one was provided.
func NewServerError(operation string, statusCode int, serverMessage string) *StandardError {
	msg := serverMessage
	if msg == "" {
		msg = fmt.Sprintf("Request failed during %s", operation)
	}
	return &StandardError{
		Code:      ErrCodeServerError,
		Message:   msg,
		Details:   fmt.Sprintf("operation: %s, status: %d", operation, statusCode),
		Retryable: statusCode >= 500,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeMandateCreateFailed,
		ErrCodeLinkedCardsFetchFailed,
		ErrCodeCatalogFetchFailed,
		ErrCodeJournalWriteFailed,
		ErrCodeNetworkError:
		return 3 // Retryable technical errors

	case ErrCodeMandateApproveFailed,
		ErrCodeMandateDeclineFailed,
		ErrCodeMandateExecuteFailed:
		// The user retries these explicitly from the chat surface; no
		// automatic retry, or a terse execute response could race a second
		// approve.
		return 0

	default:
		return 0 // Validation and precondition errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SLUG") || strings.Contains(codeStr, "INTENT"):
		return "VALIDATION"
	case strings.Contains(codeStr, "MANDATE"):
		return "MANDATE"
	case strings.Contains(codeStr, "CARDS") || strings.Contains(codeStr, "CATALOG"):
		return "CARDS"
	case strings.Contains(codeStr, "JOURNAL"):
		return "JOURNAL"
	case strings.Contains(codeStr, "NETWORK") || strings.Contains(codeStr, "SERVER"):
		return "TRANSPORT"
	default:
		return "OTHER"
	}
}
