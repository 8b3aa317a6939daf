package errors

import (
	"github.com/cockroachdb/errors"
)

// ErrorBuilder accumulates hints and details before an error is marked with a
// sentinel code.
type ErrorBuilder struct {
	err error
}

// NewError starts a builder from a plain message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// NewErrorf starts a builder from a formatted message.
func NewErrorf(format string, args ...interface{}) *ErrorBuilder {
	return &ErrorBuilder{err: errors.Newf(format, args...)}
}

// WithError wraps an existing error, keeping its stack and marks.
func WithError(err error) *ErrorBuilder {
	if err == nil {
		err = errors.New("unknown error")
	}
	return &ErrorBuilder{err: err}
}

// WithMessage prefixes the wrapped error with a message.
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

// WithHint adds a user facing hint.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...interface{}) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails attaches structured details that are safe to return to clients.
func (b *ErrorBuilder) WithReportableDetails(details map[string]interface{}) *ErrorBuilder {
	if len(details) == 0 {
		return b
	}
	b.err = &detailsError{cause: b.err, details: details}
	return b
}

// Mark tags the error with a sentinel and returns the final error.
func (b *ErrorBuilder) Mark(reference error) error {
	return errors.Mark(b.err, reference)
}

// Err returns the error without a sentinel mark.
func (b *ErrorBuilder) Err() error {
	return b.err
}

type detailsError struct {
	cause   error
	details map[string]interface{}
}

func (e *detailsError) Error() string { return e.cause.Error() }
func (e *detailsError) Unwrap() error { return e.cause }

// ReportableDetails collects every detail map attached along the chain.
func ReportableDetails(err error) map[string]interface{} {
	out := make(map[string]interface{})
	for err != nil {
		if d, ok := err.(*detailsError); ok {
			for k, v := range d.details {
				if _, exists := out[k]; !exists {
					out[k] = v
				}
			}
		}
		err = errors.UnwrapOnce(err)
	}
	return out
}

// Hint returns the flattened hints of the error, or "" if none were set.
func Hint(err error) string {
	return errors.FlattenHints(err)
}
