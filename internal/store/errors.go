package store

import (
	"errors"
	"fmt"
)

// ErrorCode classifies storage failures. NOT_SUPPORTED means the
// platform cannot provide durable storage at all; callers degrade to
// session-only operation instead of aborting.
type ErrorCode string

const (
	ErrNotSupported ErrorCode = "NOT_SUPPORTED"
	ErrInitFailed   ErrorCode = "INIT_FAILED"
	ErrWriteFailed  ErrorCode = "WRITE_FAILED"
	ErrReadFailed   ErrorCode = "READ_FAILED"
	ErrDeleteFailed ErrorCode = "DELETE_FAILED"
	ErrNotFound     ErrorCode = "NOT_FOUND"
)

type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func storageErr(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the storage error code from err, or "" if err is not
// a storage error.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
