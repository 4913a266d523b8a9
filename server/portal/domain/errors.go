package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")

	// ErrUnavailable marks an optional backend that is not configured.
	ErrUnavailable = errors.New("unavailable")
)
