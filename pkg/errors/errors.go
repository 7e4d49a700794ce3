package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the failure classes a pipeline invocation can surface
type ErrorType string

const (
	ErrorTypeResolution        ErrorType = "resolution"
	ErrorTypeBootstrapNotFound ErrorType = "bootstrap_not_found"
	ErrorTypeSignatureUpstream ErrorType = "signature_upstream"
	ErrorTypeAPI               ErrorType = "api"
	ErrorTypeSchemaValidation  ErrorType = "schema_validation"
	ErrorTypeNoUnseenItem      ErrorType = "no_unseen_item"
	ErrorTypeAssetDownload     ErrorType = "asset_download"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error represents a typed pipeline error
type Error struct {
	Type    ErrorType
	Message string
	// Code is the HTTP status observed upstream, 0 when not applicable
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

func Resolution(err error, msg string) *Error {
	return Wrap(ErrorTypeResolution, err, msg)
}

func BootstrapNotFound(msg string) *Error {
	return New(ErrorTypeBootstrapNotFound, msg)
}

func SignatureUpstream(err error, msg string) *Error {
	return Wrap(ErrorTypeSignatureUpstream, err, msg)
}

// API creates an API error carrying the upstream status code
func API(code int, msg string) *Error {
	return &Error{Type: ErrorTypeAPI, Message: msg, Code: code}
}

func SchemaValidation(err error, msg string) *Error {
	return Wrap(ErrorTypeSchemaValidation, err, msg)
}

func NoUnseenItem() *Error {
	return New(ErrorTypeNoUnseenItem, "every related item has already been watched")
}

func AssetDownload(err error, msg string) *Error {
	return Wrap(ErrorTypeAssetDownload, err, msg)
}

func NotFound(msg string) *Error {
	return New(ErrorTypeNotFound, msg)
}

// TypeOf returns the ErrorType of the first typed error in err's chain
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given ErrorType
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type is worth retrying from the caller side
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeResolution, ErrorTypeSignatureUpstream, ErrorTypeAPI, ErrorTypeAssetDownload:
		return true
	case ErrorTypeBootstrapNotFound, ErrorTypeSchemaValidation, ErrorTypeNoUnseenItem, ErrorTypeNotFound:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
