package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = newInternalError(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = newInternalError(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = newInternalError(ErrCodeValidation, "validation error")
	ErrInvalidOperation = newInternalError(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = newInternalError(ErrCodePermissionDenied, "permission denied")
	ErrHTTPClient       = newInternalError(ErrCodeHTTPClient, "http client error")
	ErrDatabase         = newInternalError(ErrCodeDatabase, "database error")
	ErrSystem           = newInternalError(ErrCodeSystem, "system error")
	ErrInternal         = newInternalError(ErrCodeInternal, "internal error")
	ErrRateLimited      = newInternalError(ErrCodeRateLimited, "rate limited")

	// Ledger taxonomy
	ErrInsufficientBalance     = newInternalError(ErrCodeInsufficientBalance, "insufficient balance")
	ErrFeatureLimitReached     = newInternalError(ErrCodeFeatureLimitReached, "feature limit reached")
	ErrLockContention          = newInternalError(ErrCodeLockContention, "lock contention")
	ErrInvalidEntitlementState = newInternalError(ErrCodeInvalidEntitlementState, "invalid entitlement state")
	ErrBillingSideEffectFailed = newInternalError(ErrCodeBillingSideEffectFailed, "billing side effect failed")
)

const (
	ErrCodeNotFound                = "not_found"
	ErrCodeAlreadyExists           = "already_exists"
	ErrCodeValidation              = "validation_error"
	ErrCodeInvalidOperation        = "invalid_operation"
	ErrCodePermissionDenied        = "permission_denied"
	ErrCodeHTTPClient              = "http_client_error"
	ErrCodeDatabase                = "database_error"
	ErrCodeSystem                  = "system_error"
	ErrCodeInternal                = "internal_error"
	ErrCodeRateLimited             = "rate_limited"
	ErrCodeInsufficientBalance     = "insufficient_balance"
	ErrCodeFeatureLimitReached     = "feature_limit_reached"
	ErrCodeLockContention          = "lock_contention"
	ErrCodeInvalidEntitlementState = "invalid_entitlement_state"
	ErrCodeBillingSideEffectFailed = "billing_side_effect_failed"
)

// InternalError is the marker type every sentinel above is built from.
type InternalError struct {
	Code    string
	Message string
	Op      string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.DisplayError(), e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}
	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}
	return e.Code == t.Code
}

func newInternalError(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

// Code returns the code of the first sentinel the error is marked with, or
// ErrCodeInternal when it carries none.
func Code(err error) string {
	for _, sentinel := range []*InternalError{
		ErrNotFound, ErrAlreadyExists, ErrValidation, ErrInvalidOperation,
		ErrPermissionDenied, ErrHTTPClient, ErrDatabase, ErrSystem,
		ErrInsufficientBalance, ErrFeatureLimitReached, ErrLockContention,
		ErrInvalidEntitlementState, ErrBillingSideEffectFailed, ErrInternal,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Code
		}
	}
	return ErrCodeInternal
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func IsSystem(err error) bool {
	return errors.Is(err, ErrSystem)
}

func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

func IsFeatureLimitReached(err error) bool {
	return errors.Is(err, ErrFeatureLimitReached)
}

func IsLockContention(err error) bool {
	return errors.Is(err, ErrLockContention)
}

func IsInvalidEntitlementState(err error) bool {
	return errors.Is(err, ErrInvalidEntitlementState)
}

func IsBillingSideEffectFailed(err error) bool {
	return errors.Is(err, ErrBillingSideEffectFailed)
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return IsLockContention(err)
}
