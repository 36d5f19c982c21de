package seed

import (
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/store"
)

// Code is the failure class reported to the operator.
type Code string

const (
	CodePrerequisiteMissing Code = "PrerequisiteMissing"
	CodeValidation          Code = "ValidationError"
	CodeUniqueness          Code = "UniquenessViolation"
	CodePartialApply        Code = "PartialApplyFailure"
	CodeResyncInconsistency Code = "ResyncInconsistency"
	CodeInternal            Code = "Internal"
)

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrPrerequisite        = &Error{Code: CodePrerequisiteMissing}
	ErrValidation          = &Error{Code: CodeValidation}
	ErrUniqueness          = &Error{Code: CodeUniqueness}
	ErrPartialApply        = &Error{Code: CodePartialApply}
	ErrResyncInconsistency = &Error{Code: CodeResyncInconsistency}
	ErrInternal            = &Error{Code: CodeInternal}
)

// Error carries the failure class and the natural key of the entity that failed.
type Error struct {
	Code Code
	Key  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Key, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the outermost *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func newError(code Code, key, op string, err error) *Error {
	return &Error{Code: code, Key: key, Op: op, Err: err}
}

// MapStoreError classifies an error returned by the store or the content
// schema. Errors that are already classified pass through unchanged.
func MapStoreError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var ve *curriculum.ValidationError
	switch {
	case errors.As(err, &ve):
		if ve.Key != "" {
			key = ve.Key
		}
		return newError(CodeValidation, key, op, err)
	case errors.Is(err, store.ErrDuplicate):
		return newError(CodeUniqueness, key, op, err)
	case errors.Is(err, store.ErrMissingParent), errors.Is(err, store.ErrNotFound):
		return newError(CodePrerequisiteMissing, key, op, err)
	}
	return newError(CodeInternal, key, op, err)
}
