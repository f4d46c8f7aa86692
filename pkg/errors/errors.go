package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable category of an application error.
type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindInvalidState Kind = "invalid_state"
	KindSignature    Kind = "signature_error"
	KindGateway      Kind = "gateway_error"
	KindStore        Kind = "store_error"
	KindInternal     Kind = "internal_error"
)

var kindStatus = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindForbidden:    http.StatusForbidden,
	KindUnauthorized: http.StatusUnauthorized,
	KindInvalidState: http.StatusConflict,
	KindSignature:    http.StatusBadRequest,
	KindGateway:      http.StatusBadGateway,
	KindStore:        http.StatusServiceUnavailable,
	KindInternal:     http.StatusInternalServerError,
}

// Error represents an application error
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// Is reports kind equality so errors.Is(err, errors.ErrNotFound) matches any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ClientFacing is true for kinds the caller can remediate (4xx).
func (e *Error) ClientFacing() bool {
	return e.Code >= 400 && e.Code < 500
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func Validation(message string) *Error { return New(KindValidation, message, nil) }

func NotFound(message string) *Error { return New(KindNotFound, message, nil) }

func Forbidden(message string) *Error { return New(KindForbidden, message, nil) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, message, nil) }

func InvalidState(message string) *Error { return New(KindInvalidState, message, nil) }

func Signature(err error) *Error {
	return New(KindSignature, "webhook signature verification failed", err)
}

func Gateway(message string, err error) *Error { return New(KindGateway, message, err) }

func Store(message string, err error) *Error { return New(KindStore, message, err) }

// Sentinels for errors.Is comparisons; only Kind is compared.
var (
	ErrValidation   = New(KindValidation, "Validation error", nil)
	ErrNotFound     = New(KindNotFound, "Not found", nil)
	ErrForbidden    = New(KindForbidden, "Forbidden", nil)
	ErrUnauthorized = New(KindUnauthorized, "Unauthorized", nil)
	ErrInvalidState = New(KindInvalidState, "Invalid state", nil)
	ErrSignature    = New(KindSignature, "Invalid signature", nil)
	ErrGateway      = New(KindGateway, "Payment gateway error", nil)
	ErrStore        = New(KindStore, "Store unavailable", nil)
)

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return New(KindInternal, "Internal server error", err)
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e := From(err); e != nil {
		return e.Kind
	}
	return ""
}
