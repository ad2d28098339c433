package qao

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes runtime errors.
type ErrorKind string

const (
	// LogicError marks programmer misuse. Never retried.
	LogicError ErrorKind = "LOGIC_ERROR"

	// ValidationError marks malformed persisted state.
	ValidationError ErrorKind = "VALIDATION_ERROR"
)

// Sentinel causes. Every *Error returned by this package wraps one of these,
// so callers can match with errors.Is.
var (
	ErrReentrantStep   = errors.New("step control called from inside a dispatch")
	ErrNotStarted      = errors.New("advance step without start step")
	ErrNotOwned        = errors.New("object is not registered with this runtime")
	ErrAlreadyAdded    = errors.New("object is already registered with a runtime")
	ErrSlotOccupied    = errors.New("registry slot already in use")
	ErrStaleGeneration = errors.New("registry slot generation is ahead of requested id")
	ErrNullID          = errors.New("null object id")
	ErrUnknownTypeTag  = errors.New("unknown type tag")
	ErrTruncated       = errors.New("truncated state stream")
	ErrInvalidEvent    = errors.New("invalid event kind")
	ErrPriorityRange   = errors.New("priority does not fit the persisted 32-bit field")
)

// Error is the structured error returned by Runtime, Registry and the
// persistence helpers.
type Error struct {
	Kind  ErrorKind
	Op    string
	ID    ObjectID
	Cause error
	Msg   string
}

func (e *Error) Error() string {
	msg := e.Cause.Error()
	if e.Msg != "" {
		msg = e.Msg + ": " + msg
	}
	if !e.ID.IsNull() {
		return fmt.Sprintf("%s: %s (op=%s, id=%s)", e.Kind, msg, e.Op, e.ID)
	}
	return fmt.Sprintf("%s: %s (op=%s)", e.Kind, msg, e.Op)
}

func (e *Error) Unwrap() error { return e.Cause }

func logicError(op string, id ObjectID, cause error) *Error {
	return &Error{Kind: LogicError, Op: op, ID: id, Cause: cause}
}

func validationError(op string, id ObjectID, cause error, format string, args ...any) *Error {
	return &Error{Kind: ValidationError, Op: op, ID: id, Cause: cause, Msg: fmt.Sprintf(format, args...)}
}

// IsLogicError reports whether err is, or wraps, a LogicError.
func IsLogicError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == LogicError
	}
	return false
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == ValidationError
	}
	return false
}
