// Package apperr defines the error kinds of the service and the fixed
// messages returned to clients. Use errors.Is / errors.As to match them.
package apperr

import "errors"

// Kind classifies an error for the transport layer
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a client-facing error with a short machine-readable message
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validation returns a validation error carrying msg
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// ErrNoRecord is returned by stores when a record or blob does not exist
// or its identifier is malformed.
var ErrNoRecord = errors.New("record not found")

var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "Not found"}
	ErrInternal     = &Error{Kind: KindInternal, Message: "Server error"}

	ErrMissingName     = Validation("Missing name")
	ErrMissingType     = Validation("Missing type")
	ErrMissingData     = Validation("Missing data")
	ErrParentNotFound  = Validation("Parent not found")
	ErrParentNotFolder = Validation("Parent is not a folder")
	ErrFolderContent   = Validation("A folder doesn't have content")
	ErrInvalidBody     = Validation("Invalid body")

	ErrMissingEmail    = Validation("Missing email")
	ErrMissingPassword = Validation("Missing password")
	ErrAlreadyExists   = Validation("Already exist")
)

// KindOf returns the kind of err; errors that are not *Error are internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing message of err, hiding internal detail
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return ErrInternal.Message
}
