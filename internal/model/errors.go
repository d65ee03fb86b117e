package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes BRAID errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument: bad tag type, missing cause and root, malformed input.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeUnsupportedOperation: a derivation targeting an immutable Fact.
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeReferential: an edge, tag, uri or binding referencing a missing row.
	ErrCodeReferential ErrorCode = "REFERENTIAL_ERROR"

	// ErrCodeStorage: the backing transaction failed.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// ErrCodeTemplate: an action template could not be substituted.
	ErrCodeTemplate ErrorCode = "TEMPLATE_ERROR"

	// ErrCodeCycleDetected: a cascade re-entered a record on its active path.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// ErrCodeLimitExceeded: a cascade exceeded the configured depth.
	ErrCodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"
)

// Error is the error type surfaced by the store, engine and dispatcher.
// Errors are never retried internally.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// Details contains additional context (record ids, template keys).
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err (or anything it wraps) is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func IsInvalidArgument(err error) bool     { return IsCode(err, ErrCodeInvalidArgument) }
func IsUnsupportedOperation(err error) bool { return IsCode(err, ErrCodeUnsupportedOperation) }
func IsReferential(err error) bool          { return IsCode(err, ErrCodeReferential) }
func IsStorage(err error) bool              { return IsCode(err, ErrCodeStorage) }
func IsTemplate(err error) bool             { return IsCode(err, ErrCodeTemplate) }
func IsCycle(err error) bool                { return IsCode(err, ErrCodeCycleDetected) }
func IsLimitExceeded(err error) bool        { return IsCode(err, ErrCodeLimitExceeded) }

// NewInvalidArgument creates an INVALID_ARGUMENT error.
func NewInvalidArgument(msg string) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: msg}
}

// NewUnsupportedOperation creates an UNSUPPORTED_OPERATION error.
func NewUnsupportedOperation(msg string) *Error {
	return &Error{Code: ErrCodeUnsupportedOperation, Message: msg}
}

// NewReferentialError creates a REFERENTIAL_ERROR for a missing row.
func NewReferentialError(msg string, err error) *Error {
	return &Error{Code: ErrCodeReferential, Message: msg, Err: err}
}

// NewStorageError wraps a failure of the backing store. op names the
// operation, e.g. "create record".
func NewStorageError(op string, err error) *Error {
	return &Error{Code: ErrCodeStorage, Message: op, Err: err}
}

// NewTemplateError creates a TEMPLATE_ERROR for the given placeholder key.
func NewTemplateError(msg, key string) *Error {
	e := &Error{Code: ErrCodeTemplate, Message: msg}
	if key != "" {
		e.Details = map[string]string{"key": key}
	}
	return e
}

// NewCycleError creates a CYCLE_DETECTED error for a record re-entered
// during one cascade.
func NewCycleError(recordID int64, path []int64) *Error {
	return &Error{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("record %d re-entered while its cascade is in progress", recordID),
		Details: map[string]string{
			"record_id": fmt.Sprintf("%d", recordID),
			"path":      fmt.Sprintf("%v", path),
		},
	}
}

// NewLimitError creates a LIMIT_EXCEEDED error for a cascade deeper than max.
func NewLimitError(depth, max int) *Error {
	return &Error{
		Code:    ErrCodeLimitExceeded,
		Message: fmt.Sprintf("cascade depth exceeded (%d > %d)", depth, max),
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", max),
		},
	}
}
