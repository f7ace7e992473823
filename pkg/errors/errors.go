// Package errors defines the typed error codes shared by the services and the
// HTTP layer. Every code resolves to a status, a public message and a policy
// for what may reach the client.
package errors

import (
	stdErrors "errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeIneligibleOrder   Code = "INELIGIBLE_ORDER"
	CodeStaleBatchMember  Code = "STALE_BATCH_MEMBER"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is the HTTP surface of a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	withDetails
	echoMessage
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&withDetails != 0,
		ExposeMessage:  traits&echoMessage != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:        describe(http.StatusBadRequest, "validation failed", withDetails|echoMessage),
	CodeUnauthorized:      describe(http.StatusUnauthorized, "authentication required", echoMessage),
	CodeForbidden:         describe(http.StatusForbidden, "access denied", echoMessage),
	CodeNotFound:          describe(http.StatusNotFound, "resource not found", withDetails|echoMessage),
	CodeConflict:          describe(http.StatusConflict, "conflict detected", echoMessage),
	CodeInvalidTransition: describe(http.StatusUnprocessableEntity, "state transition disallowed", withDetails|echoMessage),
	CodeIneligibleOrder:   describe(http.StatusConflict, "order not eligible for batch", withDetails|echoMessage),
	CodeStaleBatchMember:  describe(http.StatusConflict, "batch member changed since batch creation", withDetails|echoMessage),
	CodeIdempotency:       describe(http.StatusConflict, "idempotency key reused", withDetails|echoMessage),
	CodeInternal:          describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is a coded error with an optional cause and client-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches details in place and returns the receiver.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	return As(err).Code()
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Public is what a client is allowed to see for an error.
type Public struct {
	Code    Code
	Status  int
	Message string
	Details any
}

// Resolve maps err to its client-facing form. Untyped errors become
// CodeInternal with the generic message.
func Resolve(err error) Public {
	typed := As(err)
	meta := MetadataFor(typed.Code())
	out := Public{Code: typed.Code(), Status: meta.HTTPStatus, Message: meta.PublicMessage}
	if meta.ExposeMessage && typed.Message() != "" {
		out.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}
