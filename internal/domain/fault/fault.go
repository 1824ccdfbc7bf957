// Package fault defines the recoverable error taxonomy shared by the domain
// services. Every domain failure carries a Kind and an end-user sentence that
// callers may show verbatim.
package fault

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a recoverable domain failure.
type Kind string

const (
	// NotFound means the referenced record is absent or not owned by the caller.
	NotFound Kind = "NotFound"
	// InvalidInput means the request carried a malformed value.
	InvalidInput Kind = "InvalidInput"
	// PolicyViolation means the request was well-formed but a business rule
	// rejected it.
	PolicyViolation Kind = "PolicyViolation"
)

// Error is a classified domain failure. Reason is the package-level sentinel
// the failure corresponds to, so errors.Is keeps working through it.
type Error struct {
	Kind    Kind
	Reason  error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Reason
}

// New returns a classified failure with a formatted end-user message.
func New(kind Kind, reason error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// As extracts the classified failure from err, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or the empty Kind for unclassified errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return ""
}

// Result is the plain outcome reported to callers of mutating operations.
type Result struct {
	OK        bool
	ErrorKind Kind
	Message   string
}

// ResultOf converts an operation error into a Result. Unclassified errors are
// infrastructure failures and are returned unchanged instead of being folded
// into the Result.
func ResultOf(err error) (Result, error) {
	if err == nil {
		return Result{OK: true}, nil
	}
	fe, ok := As(err)
	if !ok {
		return Result{}, err
	}
	return Result{ErrorKind: fe.Kind, Message: fe.Message}, nil
}
