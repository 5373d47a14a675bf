package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a response code.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindPreconditionFailed
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a typed business failure.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field messages for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind and message so that wrapped copies
// produced by Wrap still compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a copy of a sentinel error.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Fields: sentinel.Fields, Err: cause}
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrBookNotFound        = New(KindNotFound, "book not found or inactive")
	ErrBookUnavailable     = New(KindPreconditionFailed, "book unavailable")
	ErrMemberNotFound      = New(KindNotFound, "member not found")
	ErrMemberNotActive     = New(KindPreconditionFailed, "member not active")
	ErrQuotaExceeded       = New(KindPreconditionFailed, "quota exceeded")
	ErrTransactionNotFound = New(KindNotFound, "transaction not found")
	ErrNotBorrowed         = New(KindInvalidState, "book is not currently borrowed")
	ErrOpenTransactions    = New(KindPreconditionFailed, "cannot delete: open transactions exist")
	ErrDuplicateISBN       = New(KindConflict, "a book with this ISBN already exists")
	ErrDuplicateEmail      = New(KindConflict, "email is already registered")
	ErrCopiesOnLoan        = New(KindValidation, "total copies cannot be less than copies on loan")
	ErrDueDateNotEditable  = New(KindInvalidState, "due date can only be changed on active transactions")
	ErrDueDateInvalid      = New(KindValidation, "due date must be after the borrow date")
	ErrUserNotFound        = New(KindNotFound, "user not found")
	ErrInvalidCredentials  = New(KindUnauthorized, "invalid credentials or account inactive")
	ErrInvalidToken        = New(KindUnauthorized, "invalid or expired token")
	ErrForbidden           = New(KindForbidden, "insufficient permissions")
)
