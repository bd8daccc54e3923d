package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects empty or invalid required input before any
// remote call is issued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RemoteError wraps any remote-store failure. It is surfaced as a
// transient notification and never retried automatically.
type RemoteError struct {
	Op  string
	Err error
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e RemoteError) Unwrap() error { return e.Err }

// NotFoundError means the target id is no longer present. Deletes treat
// it as already satisfied; updates treat it as a hard failure.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsRemote reports whether err is a RemoteError.
func IsRemote(err error) bool {
	var r RemoteError
	return errors.As(err, &r)
}
