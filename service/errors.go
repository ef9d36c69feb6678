// Package service holds the use cases behind the HTTP handlers.
package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrAlreadyCheckedIn  = errors.New("already checked in, check out first")
	ErrCheckInInProgress = errors.New("another check-in is in progress")
	ErrNoOpenAttendance  = errors.New("no open attendance to check out")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrActiveGeofence    = errors.New("cannot delete the active geofence")
	ErrNoActiveGeofence  = errors.New("no active geofence")
)

// ValidationError is a client input problem; handlers answer 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
