package domain

import "net/http"

// ErrorCode enumerates the stable error codes exposed to API clients.
type ErrorCode string

const (
	CodeValidationError      ErrorCode = "VALIDATION_ERROR"
	CodeUnauthenticated      ErrorCode = "UNAUTHENTICATED"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeFinalRequired        ErrorCode = "FINAL_REQUIRED"
	CodeQuotaReached         ErrorCode = "QUOTA_REACHED"
	CodeRateLimit            ErrorCode = "RATE_LIMIT"
	CodeEvaluationInProgress ErrorCode = "EVALUATION_IN_PROGRESS"
	CodeAIUnavailable        ErrorCode = "AI_UNAVAILABLE"
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
)

// StatusForCode maps an error code to its HTTP status. The mapping is part of
// the client contract and must stay stable per code.
func StatusForCode(code ErrorCode) int {
	switch code {
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFinalRequired, CodeQuotaReached, CodeEvaluationInProgress:
		return http.StatusConflict
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeAIUnavailable, CodeInternalError:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// APIError is the error envelope returned on every denial path.
type APIError struct {
	Status    int            `json:"status"`
	ErrorCode ErrorCode      `json:"errorCode"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return string(e.ErrorCode) + ": " + e.Message
}

// NewAPIError builds an envelope for the given code with its canonical status.
func NewAPIError(code ErrorCode, message string, details map[string]any) *APIError {
	return &APIError{
		Status:    StatusForCode(code),
		ErrorCode: code,
		Message:   message,
		Details:   details,
	}
}
