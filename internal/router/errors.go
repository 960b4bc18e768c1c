package router

import (
	"errors"
	"fmt"

	"github.com/omochice/framechat/pkg/protocol"
)

// Kind classifies request failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindForbidden
	KindResource
	KindRateLimited
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindResource:
		return "resource"
	case KindRateLimited:
		return "rate_limited"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

func (k Kind) status() protocol.StatusCode {
	switch k {
	case KindValidation:
		return protocol.StatusBadRequest
	case KindAuthentication:
		return protocol.StatusUnauthorized
	case KindForbidden:
		return protocol.StatusForbidden
	case KindResource:
		return protocol.StatusNotFound
	case KindRateLimited:
		return protocol.StatusTooManyRequests
	default:
		return protocol.StatusInternalError
	}
}

// Error is a request failure that becomes an ERROR response.
type Error struct {
	Kind Kind
	// Status overrides the default status of Kind when non-zero.
	Status  protocol.StatusCode
	Message string
	// Close ends the connection after the ERROR response.
	Close bool
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the status sent to the client.
func (e *Error) StatusCode() protocol.StatusCode {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.status()
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notAuthenticated() *Error {
	return &Error{Kind: KindAuthentication, Message: "Not authenticated"}
}

func roomNotFound() *Error {
	return &Error{Kind: KindResource, Status: protocol.StatusRoomNotExist, Message: "Room does not exist"}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// asError converts any error into an *Error, treating unknown ones as
// internal failures.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}
