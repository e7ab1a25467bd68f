package scheduler

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes scheduler errors.
type ErrorCode string

const (
	// ErrCodeInputAssembly means the evaluation input could not be built:
	// the decision or a record it references is missing, or the snapshot
	// is malformed. The decision was not modified.
	ErrCodeInputAssembly ErrorCode = "INPUT_ASSEMBLY"

	// ErrCodePersistence means the evaluation was computed but could not
	// be written.
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	// ErrCodeConcurrentUpdate means the decision kept changing underneath
	// the evaluation, even after one reload.
	ErrCodeConcurrentUpdate ErrorCode = "CONCURRENT_UPDATE"

	// ErrCodeEngineFailure means the engine panicked.
	ErrCodeEngineFailure ErrorCode = "ENGINE_FAILURE"
)

// Error is returned by the scheduler for per-decision failures.
type Error struct {
	Code       ErrorCode
	DecisionID string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (decision=%s)", e.Code, e.Message, e.DecisionID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, decisionID, msg string, err error) *Error {
	return &Error{Code: code, DecisionID: decisionID, Message: msg, Err: err}
}

// CodeOf returns the code of a wrapped *Error, or "".
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsInputError reports whether err is an input assembly failure.
// Uses errors.As to handle wrapped errors.
func IsInputError(err error) bool {
	return CodeOf(err) == ErrCodeInputAssembly
}

// IsPersistenceError reports whether err is a persistence failure,
// including an unresolved concurrent update.
func IsPersistenceError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodePersistence || code == ErrCodeConcurrentUpdate
}
