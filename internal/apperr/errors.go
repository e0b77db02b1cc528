// Package apperr defines the error taxonomy shared by the HTTP surface.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindBadRequest
	KindConfiguration
	KindCrypto
	KindStorage
	KindExternalService
)

var kindNames = map[Kind]string{
	KindInternal:        "internal",
	KindAuthentication:  "authentication",
	KindAuthorization:   "authorization",
	KindNotFound:        "not_found",
	KindBadRequest:      "bad_request",
	KindConfiguration:   "configuration",
	KindCrypto:          "crypto",
	KindStorage:         "storage",
	KindExternalService: "external_service",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error carries a Kind, a caller-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Authentication(msg string) *Error { return newError(KindAuthentication, msg, nil) }
func Authorization(msg string) *Error  { return newError(KindAuthorization, msg, nil) }
func NotFound(msg string) *Error       { return newError(KindNotFound, msg, nil) }
func BadRequest(msg string) *Error     { return newError(KindBadRequest, msg, nil) }

func Configuration(msg string, err error) *Error   { return newError(KindConfiguration, msg, err) }
func Crypto(msg string, err error) *Error          { return newError(KindCrypto, msg, err) }
func Storage(msg string, err error) *Error         { return newError(KindStorage, msg, err) }
func ExternalService(msg string, err error) *Error { return newError(KindExternalService, msg, err) }
func Internal(msg string, err error) *Error        { return newError(KindInternal, msg, err) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to a caller. Every 5xx kind shares
// one message so crypto failures cannot be told apart from other faults.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return appErr.Msg
	}
	return http.StatusText(HTTPStatus(err))
}
