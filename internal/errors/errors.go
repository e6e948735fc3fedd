package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a saiten error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrConflict          ErrorCode = "CONFLICT"           // 409
	ErrAlreadyReviewed   ErrorCode = "ALREADY_REVIEWED"   // 409
	ErrAlreadyChecked    ErrorCode = "ALREADY_CHECKED"    // 409
	ErrPayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"  // 413
	ErrInvalidSubmission ErrorCode = "INVALID_SUBMISSION" // 422
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrUnavailable       ErrorCode = "UNAVAILABLE"        // 503
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing assignment or student.
func NewNotFound(kind, identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing file on disk.
func NewFileNotFound(path string) *Error {
	return &Error{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *Error {
	return &Error{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewAlreadyReviewed creates a 409 error returned by the checker when a
// student's review was completed while the check was running.
func NewAlreadyReviewed(studentID string) *Error {
	return &Error{
		Code:    ErrAlreadyReviewed,
		Status:  409,
		Message: fmt.Sprintf("student already reviewed: %s", studentID),
		Details: map[string]any{"student_id": studentID},
	}
}

// NewAlreadyChecked creates a 409 error when a batch auto-check has already
// completed for the assignment and force was not requested.
func NewAlreadyChecked(assignmentID string) *Error {
	return &Error{
		Code:    ErrAlreadyChecked,
		Status:  409,
		Message: fmt.Sprintf("assignment already auto-checked: %s (use force to re-run)", assignmentID),
		Details: map[string]any{"assignment_id": assignmentID},
	}
}

// NewPayloadTooLarge creates a 413 error for oversized uploads.
func NewPayloadTooLarge(maxBytes, actual int64) *Error {
	return &Error{
		Code:    ErrPayloadTooLarge,
		Status:  413,
		Message: fmt.Sprintf("upload exceeds maximum size: %d bytes (max %d)", actual, maxBytes),
		Details: map[string]any{"max_bytes": maxBytes, "actual_bytes": actual},
	}
}

// NewInvalidSubmission creates a 422 error for CSV or ZIP content that cannot be ingested.
func NewInvalidSubmission(msg string) *Error {
	return &Error{
		Code:    ErrInvalidSubmission,
		Status:  422,
		Message: msg,
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by its caller.
func NewCancelled(operation string) *Error {
	return &Error{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewUnavailable creates a 503 error when a remote store cannot be reached.
func NewUnavailable(err error) *Error {
	msg := "store unavailable"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if err (or anything it wraps) is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *Error
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// From returns err as an *Error, converting unknown errors to INTERNAL.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var sErr *Error
	if stderrors.As(err, &sErr) {
		return sErr
	}
	return NewInternal(err)
}
