package srvcerror

import "net/http"

// Class tells callers how to react to an error without parsing its text.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassTransient
	ClassConsistency
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassTransient:
		return "transient"
	case ClassConsistency:
		return "consistency"
	default:
		return "internal"
	}
}

type Error struct {
	errorCode  string
	msgToUser  string // public
	dbgInfoErr error  // private, for debugging
	class      Class

	httpStatus int // optional, for HTTP responses
}

func (e *Error) Error() string {
	return e.msgToUser
}

func (e *Error) ErrorCode() string {
	return e.errorCode
}

func (e *Error) DebugInfo() error {
	return e.dbgInfoErr
}

// Unwrap exposes the debug error so errors.Is works through service errors.
func (e *Error) Unwrap() error {
	return e.dbgInfoErr
}

func (e *Error) SetDebug(err error) *Error {
	e.dbgInfoErr = err
	return e
}

func (e *Error) Class() Class {
	return e.class
}

func (e *Error) SetClass(c Class) *Error {
	e.class = c
	return e
}

// IsRetryable reports whether repeating the same call may succeed.
func (e *Error) IsRetryable() bool {
	return e.class == ClassTransient
}

func (e *Error) HttpStatusCode() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

func (e *Error) SetHttpStatusCode(code int) *Error {
	e.httpStatus = code
	return e
}

func New(errorCode string, msgToUser string) *Error {
	return &Error{
		errorCode: errorCode,
		msgToUser: msgToUser,
	}
}

// Validation builds a terminal, user-facing error.
func Validation(errorCode string, msgToUser string) *Error {
	return New(errorCode, msgToUser).
		SetClass(ClassValidation).
		SetHttpStatusCode(http.StatusBadRequest)
}

// Consistency builds an error for requests that conflict with recorded state.
func Consistency(errorCode string, msgToUser string) *Error {
	return New(errorCode, msgToUser).
		SetClass(ClassConsistency).
		SetHttpStatusCode(http.StatusConflict)
}

// Transient builds a retryable error for unavailable collaborators.
func Transient(errorCode string, msgToUser string) *Error {
	return New(errorCode, msgToUser).
		SetClass(ClassTransient).
		SetHttpStatusCode(http.StatusServiceUnavailable)
}

const ErrCodeInternalServerError = "internal_server_error"

func ErrInternalSE() *Error {
	return New(
		ErrCodeInternalServerError,
		"internal server error",
	).SetHttpStatusCode(http.StatusInternalServerError)
}
