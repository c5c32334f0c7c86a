package service

import (
	"errors"
	"fmt"
)

// ValidationCode identifies a user-correctable input problem. These are
// surfaced verbatim to the caller and never retried.
type ValidationCode string

const (
	CodeEmptyTitle         ValidationCode = "EMPTY_TITLE"
	CodeTitleTooLong       ValidationCode = "TITLE_TOO_LONG"
	CodeDescriptionTooLong ValidationCode = "DESCRIPTION_TOO_LONG"
	CodeInvalidDate        ValidationCode = "INVALID_DATE"
	CodeTaskNotFound       ValidationCode = "TASK_NOT_FOUND"
)

type ValidationError struct {
	Code ValidationCode
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("validation: %s", e.Code)
	}
	return fmt.Sprintf("validation: %s: %s", e.Code, e.Msg)
}

func validationErr(code ValidationCode, msg string) *ValidationError {
	return &ValidationError{Code: code, Msg: msg}
}

// ValidationCodeOf extracts the validation code from err, or "" if err
// is not a validation error.
func ValidationCodeOf(err error) ValidationCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
