// Package rejection classifies the recoverable outcomes of message processing.
//
// A rejection never propagates past the pipeline: its text is the reply sent back to the
// sender. Anything that is not a rejection is treated as a collaborator failure.
package rejection

import (
	"errors"
	"fmt"
)

const (
	// CategoryValidation covers malformed input: bad command syntax, non-integer arguments,
	// bad password format.
	CategoryValidation = "validation"
	// CategoryPolicy covers well-formed input refused by a rule: limits exceeded, unknown or
	// consumed password.
	CategoryPolicy = "policy"
	// CategoryFailure is reported for errors that are not rejections.
	CategoryFailure = "failure"
)

// Error is a categorized, user-visible rejection.
type Error struct {
	Category string
	Reply    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	return e.Reply
}

// Validation builds a validation rejection.
func Validation(reply string) error {
	return &Error{Category: CategoryValidation, Reply: reply}
}

// Validationf builds a validation rejection from a format string.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Policy builds a policy rejection.
func Policy(reply string) error {
	return &Error{Category: CategoryPolicy, Reply: reply}
}

// Policyf builds a policy rejection from a format string.
func Policyf(format string, args ...any) error {
	return Policy(fmt.Sprintf(format, args...))
}

// CategoryFromError returns the stable category for an error.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var rejected *Error
	if errors.As(err, &rejected) {
		return rejected.Category
	}

	return CategoryFailure
}

// ReplyFromError returns the reply text of a rejection, and false for any other error.
func ReplyFromError(err error) (string, bool) {
	var rejected *Error
	if !errors.As(err, &rejected) || rejected == nil {
		return "", false
	}

	return rejected.Reply, true
}
