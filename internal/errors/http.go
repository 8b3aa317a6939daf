package errors

import (
	"net/http"
)

// ErrorResponse is the envelope returned by the HTTP layer.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Display       string                 `json:"display_error"`
	InternalError string                 `json:"internal_error,omitempty"`
	Code          string                 `json:"code,omitempty"`
	Retryable     bool                   `json:"retryable,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// HTTPStatusFromErr maps a marked error to the HTTP status returned to clients.
func HTTPStatusFromErr(err error) int {
	switch Code(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyExists:
		return http.StatusConflict
	case ErrCodeValidation, ErrCodeInvalidOperation:
		return http.StatusBadRequest
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeInsufficientBalance, ErrCodeFeatureLimitReached:
		return http.StatusPaymentRequired
	case ErrCodeLockContention:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeBillingSideEffectFailed, ErrCodeHTTPClient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the client envelope for err.
func NewErrorResponse(err error) ErrorResponse {
	display := Hint(err)
	if display == "" {
		display = "An unexpected error occurred"
	}
	details := ReportableDetails(err)
	if len(details) == 0 {
		details = nil
	}
	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display:       display,
			InternalError: err.Error(),
			Code:          Code(err),
			Retryable:     IsRetryable(err),
			Details:       details,
		},
	}
}
