// Package service carries the plumbing shared by the domain services:
// operation-scoped error codes and id generation.
package service

import "fmt"

// Error attaches a stable operation-scoped code to an underlying cause.
// Codes follow the form "<service>.<operation>.<reason>".
type Error struct {
	code string
	err  error
}

// NewError builds an Error for the given operation and reason.
func NewError(operation, reason string, cause error) error {
	return &Error{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *Error) Code() string {
	return e.code
}
