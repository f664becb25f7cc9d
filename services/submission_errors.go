package services

import (
	"errors"
	"fmt"
)

var (
	ErrActivityNotFound      = errors.New("submission activity not found")
	ErrThreadNotFound        = errors.New("submission thread not found")
	ErrSubmittingOrgNotFound = errors.New("submitting org not found")

	// ErrForbidden is returned when a record exists but belongs to another user.
	ErrForbidden = errors.New("permission denied")

	ErrDuplicateThread = errors.New("submission thread already exists for this variant")
	ErrActivityLocked  = errors.New("submission activity is already being processed")
	ErrThreadBusy      = errors.New("submission thread is being processed")

	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidActivityKind   = errors.New("invalid activity kind")
	ErrMissingRequestPayload = errors.New("request payload is required")

	// ErrNotImplemented marks activity kinds without a processing flow yet. It
	// is kept apart from registry failures so gaps show up as such in logs.
	ErrNotImplemented = errors.New("not implemented")
)

// IsNotFound reports whether err is one of the submission not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrThreadNotFound) ||
		errors.Is(err, ErrSubmittingOrgNotFound)
}

// ValidationError describes a rejected API input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidField(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
