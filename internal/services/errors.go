package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when a record exists but belongs to another user.
	ErrAccessDenied = errors.New("access denied")
	// ErrAIUnavailable is returned when the LLM integration is not configured.
	ErrAIUnavailable = errors.New("llm integration is not configured")
	// ErrStorageUnavailable is returned when object storage is not configured.
	ErrStorageUnavailable = errors.New("object storage is not configured")
)

// ValidationError reports input or response data with the wrong shape. It is never retried.
type ValidationError struct {
	Message string
	Issues  []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Issues, "; ")
}

// NetworkError is a transport failure or a 5xx answer from the provider.
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-5xx error status from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION"
	CodeDatabase   ErrorCode = "DATABASE"
	CodeGeneration ErrorCode = "GENERATION"
	CodeUnknown    ErrorCode = "UNKNOWN"
)

// FlashcardError is the error type returned by the storage-backed services.
type FlashcardError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *FlashcardError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *FlashcardError) Unwrap() error { return e.Err }

func validationErr(msg string) error {
	return &FlashcardError{Code: CodeValidation, Message: msg}
}

func databaseErr(msg string, err error) error {
	return &FlashcardError{Code: CodeDatabase, Message: msg, Err: err}
}

func notFoundErr(what string) error {
	return &FlashcardError{Code: CodeDatabase, Message: what, Err: ErrNotFound}
}

func accessDeniedErr(what string) error {
	return &FlashcardError{Code: CodeDatabase, Message: what, Err: ErrAccessDenied}
}

// HTTPStatus maps a service error to the response status the API layer uses.
func HTTPStatus(err error) int {
	var fe *FlashcardError
	var ve *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAIUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &fe):
		if fe.Code == CodeValidation {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case errors.As(err, &ve):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that is safe to show to API callers.
func PublicMessage(err error) string {
	var fe *FlashcardError
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "access denied"
	case errors.Is(err, ErrNotFound):
		if errors.As(err, &fe) && fe.Message != "" {
			return fe.Message
		}
		return "not found"
	case errors.Is(err, ErrAIUnavailable):
		return "ai generation is not available"
	case errors.As(err, &fe):
		if fe.Code == CodeValidation {
			return fe.Message
		}
		return "internal server error"
	case errors.As(err, &ve):
		return ve.Error()
	default:
		return "internal server error"
	}
}
