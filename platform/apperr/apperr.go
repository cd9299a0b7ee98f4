// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the HTTP layer
// maps them to appropriate HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindBadRequest indicates a malformed request body.
	KindBadRequest
	// KindInternal indicates an unexpected internal error.
	KindInternal
	// KindUnsupportedModel indicates the requested model kind is not available.
	KindUnsupportedModel
	// KindDegenerateTraining indicates the training data cannot produce a classifier
	// (empty, or lacking one of the two classes).
	KindDegenerateTraining
	// KindInference indicates probability computation failed for the batch.
	KindInference
	// KindTimeout indicates training did not finish before its deadline.
	KindTimeout
	// KindUnavailable indicates a required collaborator is not configured.
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotFound:           "not_found",
	KindValidation:         "validation",
	KindUnauthorized:       "unauthorized",
	KindBadRequest:         "bad_request",
	KindInternal:           "internal",
	KindUnsupportedModel:   "unsupported_model",
	KindDegenerateTraining: "degenerate_training",
	KindInference:          "inference",
	KindTimeout:            "training_timeout",
	KindUnavailable:        "unavailable",
}

// String returns the stable code used in API responses.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest, KindUnsupportedModel:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindDegenerateTraining:
		return http.StatusUnprocessableEntity
	case KindInference, KindInternal:
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation on the error and returns it.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails sets additional details on the error and returns it.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// UnsupportedModel creates an error for an unknown or unimplemented model kind.
func UnsupportedModel(kind string) *Error {
	return New(KindUnsupportedModel, fmt.Sprintf("unsupported model kind %q", kind)).
		WithDetails(map[string]string{"modelType": kind})
}

// DegenerateTraining creates a degenerate training set error.
func DegenerateTraining(reason string) *Error {
	return New(KindDegenerateTraining, "degenerate training set: "+reason)
}

// Inference creates an inference error wrapping the cause.
func Inference(message string, err error) *Error {
	return Wrap(KindInference, message, err)
}

// Timeout creates a training timeout error wrapping the cause.
func Timeout(message string, err error) *Error {
	return Wrap(KindTimeout, message, err)
}

// Unavailable creates an error for an unconfigured collaborator.
func Unavailable(message string) *Error {
	return New(KindUnavailable, message)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
