package tidestore

import (
	"errors"
	"fmt"
)

// Location is a position range in the original query text. It travels
// with plan nodes and is reported with user-query errors.
type Location struct {
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", l.StartLine, l.StartColumn, l.EndLine, l.EndColumn)
}

// IllegalArgumentError reports invalid input supplied by the caller or
// malformed data received from the server.
type IllegalArgumentError struct {
	msg string
}

func (e *IllegalArgumentError) Error() string { return e.msg }

// NewIllegalArgument builds an IllegalArgumentError.
func NewIllegalArgument(format string, args ...any) error {
	return &IllegalArgumentError{msg: fmt.Sprintf(format, args...)}
}

// IllegalStateError reports an operation attempted in a state that does
// not allow it.
type IllegalStateError struct {
	msg string
}

func (e *IllegalStateError) Error() string { return e.msg }

// NewIllegalState builds an IllegalStateError.
func NewIllegalState(format string, args ...any) error {
	return &IllegalStateError{msg: fmt.Sprintf(format, args...)}
}

// QueryStateError is an internal invariant violation inside the query
// engine: an illegal iterator state transition, an unhandled node kind,
// a register or row shape violation. It indicates a bug or a
// client/server protocol mismatch and is never retried.
type QueryStateError struct {
	msg string
}

func (e *QueryStateError) Error() string { return e.msg }

func qsErrorf(format string, args ...any) error {
	return &QueryStateError{msg: fmt.Sprintf(format, args...)}
}

// NewQueryState builds a QueryStateError.
func NewQueryState(format string, args ...any) error {
	return qsErrorf(format, args...)
}

// QueryError is a user-visible query problem (bad OFFSET/LIMIT value,
// incomparable operand types) carrying the source location of the
// expression that raised it.
type QueryError struct {
	msg string
	Loc Location
}

func (e *QueryError) Error() string {
	return e.msg + " (at " + e.Loc.String() + ")"
}

// NewQueryError builds a QueryError at the given location.
func NewQueryError(loc Location, format string, args ...any) error {
	return &QueryError{msg: fmt.Sprintf(format, args...), Loc: loc}
}

// MemoryLimitError reports that buffering for sort, group or duplicate
// elimination exceeded the per-execution memory cap. Fatal to the
// execution.
type MemoryLimitError struct {
	Limit int64
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("memory consumption at the client exceeded maximum allowed value %d", e.Limit)
}

// retryable is implemented by transport errors that may succeed on a
// subsequent attempt of the same fetch.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// transport error.
func IsRetryable(err error) bool {
	for err != nil {
		if r, ok := err.(retryable); ok {
			return r.Retryable()
		}
		err = errors.Unwrap(err)
	}
	return false
}

// RetryableError wraps a transient transport failure. The same fetch
// step can be retried without losing driver state.
type RetryableError struct {
	msg   string
	cause error
}

func (e *RetryableError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *RetryableError) Unwrap() error   { return e.cause }
func (e *RetryableError) Retryable() bool { return true }

// NewRetryable builds a RetryableError wrapping cause (cause may be nil).
func NewRetryable(cause error, format string, args ...any) error {
	return &RetryableError{msg: fmt.Sprintf(format, args...), cause: cause}
}
