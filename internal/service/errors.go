package service

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateUsername is returned when signup hits an existing record.
	ErrDuplicateUsername = errors.New("user already exists with this username")
	// ErrPasswordMismatch is returned when a supplied password digest does
	// not match the stored digest.
	ErrPasswordMismatch = errors.New("username and password combination does not match")
	// ErrSigninThrottled is returned when a username has exhausted its
	// failed signin attempts for the current window.
	ErrSigninThrottled = errors.New("too many failed signin attempts")
)

// ValidationError carries the individual credential constraints a request
// violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid credential: " + strings.Join(e.Violations, "; ")
}

// Errs expands the violations into a slice of errors for response shaping.
func (e *ValidationError) Errs() []error {
	out := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, errors.New(v))
	}
	return out
}
