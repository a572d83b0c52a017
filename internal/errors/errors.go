// Package errors defines the structured error type used across the
// lifecycle core, with semantic error categories that map onto the
// status codes surfaced by the request dispatcher.
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
)

// ErrorType categorises an error semantically.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "notFound"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeHandler    ErrorType = "handler"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// CoreError is a structured error with category, stable code, and cause.
type CoreError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *CoreError) Unwrap() error { return e.Cause }

// Is matches on type and code so sentinel comparison works through wraps.
func (e *CoreError) Is(target error) bool {
	var t *CoreError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// HTTPStatus maps the error category to the dispatcher status code.
func (e *CoreError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeConflict:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes.
const (
	ErrCodeMissingField   = "BAD_REQUEST"
	ErrCodeInvalidOption  = "INVALID_OPTION"
	ErrCodeProjectExists  = "PROJECT_EXISTS"
	ErrCodeFileNotExist   = "FILE_NOT_EXIST"
	ErrCodeUnknownType    = "UNKNOWN_PROJECT_TYPE"
	ErrCodeUnknownAction  = "UNKNOWN_ACTION"
	ErrCodeDeleteFailed   = "DELETE_FAILED"
	ErrCodeRequiredFile   = "REQUIRED_FILE_MISSING"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeMetadataFailed = "METADATA_DIR_FAILED"
)

// NewValidationError creates a 400-class validation error.
func NewValidationError(code, message string) *CoreError {
	return &CoreError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewNotFoundError creates a 404-class error.
func NewNotFoundError(code, message string) *CoreError {
	return &CoreError{Type: ErrorTypeNotFound, Code: code, Message: message}
}

// NewConflictError creates a conflict error, surfaced as 400.
func NewConflictError(code, message string) *CoreError {
	return &CoreError{Type: ErrorTypeConflict, Code: code, Message: message}
}

// NewHandlerError wraps a failure reported by a project handler.
func NewHandlerError(code, message string, cause error) *CoreError {
	return &CoreError{Type: ErrorTypeHandler, Code: code, Message: message, Cause: cause}
}

// NewIOError wraps a filesystem failure other than ENOENT/EEXIST.
func NewIOError(code, message string, cause error) *CoreError {
	return &CoreError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewInternalError creates a fallback internal error.
func NewInternalError(code, message string, cause error) *CoreError {
	return &CoreError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// StatusFor maps any error to the dispatcher status code. ENOENT and
// FILE_NOT_EXIST surface as 404; validation and conflict as 400;
// anything else as 500.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.HTTPStatus()
	}
	if errors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether the error maps to a 404.
func IsNotFound(err error) bool {
	return StatusFor(err) == http.StatusNotFound
}

// ErrMissingField creates a validation error for a missing request field.
func ErrMissingField(field string) *CoreError {
	return NewValidationError(ErrCodeMissingField, "required field missing: "+field)
}

// ErrProjectExists creates the conflict error for a re-create with a
// different type or location.
func ErrProjectExists(projectID string) *CoreError {
	return NewConflictError(ErrCodeProjectExists,
		"project "+projectID+" already exists with a different type or location")
}

// ErrFileNotExist creates a 404 error for a missing file or location.
func ErrFileNotExist(path string) *CoreError {
	return NewNotFoundError(ErrCodeFileNotExist, "file or directory does not exist: "+path)
}

// ErrUnknownProjectType creates a 404 error for an unresolvable handler.
func ErrUnknownProjectType(projectType string) *CoreError {
	return NewNotFoundError(ErrCodeUnknownType, "no handler for project type: "+projectType)
}
