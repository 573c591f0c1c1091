// Package apperr defines the error taxonomy shared by the intake store, the
// Healthie adapter and the HTTP surface, and maps it onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the purpose of transport mapping.
type Kind int

const (
	// KindUnknown is any error that was not produced through this package.
	KindUnknown Kind = iota
	// KindNotFound means the requested entity does not exist.
	KindNotFound
	// KindValidation means input was rejected, locally or by the remote API.
	KindValidation
	// KindUpstream means the Healthie API or the network failed.
	KindUpstream
	// KindStorage means the database layer failed.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrNotFound matches every error of KindNotFound via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrValidation matches every error of KindValidation via errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream matches every error of KindUpstream via errors.Is.
	ErrUpstream = errors.New("upstream failure")

	// ErrStorage matches every error of KindStorage via errors.Is.
	ErrStorage = errors.New("storage failure")
)

var sentinels = map[Kind]error{
	KindNotFound:   ErrNotFound,
	KindValidation: ErrValidation,
	KindUpstream:   ErrUpstream,
	KindStorage:    ErrStorage,
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "intake.submit"), Message is safe to return to the client.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match on Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Detail returns the message that is sent to clients.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps err as a KindUpstream error.
func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Upstreamf builds a KindUpstream error without an underlying cause.
func Upstreamf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUpstream, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps err as a KindStorage error. An error that is already
// classified is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
