// Package errs defines the classified errors shared across ingestion,
// retrieval, and generation, and their mapping to HTTP responses.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping.
type Code string

const (
	CodeEmptyContent          Code = "empty_content"
	CodeUnsupportedFileType   Code = "unsupported_file_type"
	CodeFileTooLarge          Code = "file_too_large"
	CodeExtractionFailed      Code = "extraction_failed"
	CodeEmbeddingFailed       Code = "embedding_failed"
	CodeGenerationFailed      Code = "generation_failed"
	CodeStoreUnavailable      Code = "store_unavailable"
	CodeQueryInvalid          Code = "query_invalid"
	CodeNoRelevantInformation Code = "no_relevant_information"
)

// Error is a classified error with a caller-facing message.
// The wrapped cause (if any) is for logs, never for responses.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf returns a classified error with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code. Returns nil when err is nil.
func Wrap(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the caller-facing message of a classified error,
// or err.Error() when err carries no classification.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsInternal reports whether err must be hidden behind a generic message.
// Unclassified errors count as internal.
func IsInternal(err error) bool {
	switch CodeOf(err) {
	case CodeEmptyContent, CodeUnsupportedFileType, CodeFileTooLarge,
		CodeExtractionFailed, CodeQueryInvalid, CodeNoRelevantInformation:
		return false
	}
	return true
}

// HTTPStatus maps err to an HTTP status: caller faults are 400, a missing
// answer is 404, everything else is 500.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeEmptyContent, CodeUnsupportedFileType, CodeFileTooLarge,
		CodeExtractionFailed, CodeQueryInvalid:
		return http.StatusBadRequest
	case CodeNoRelevantInformation:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
