package domain

import "errors"

var (
	// ErrNotFound is returned when a profile does not exist.
	ErrNotFound = errors.New("profile not found")
	// ErrVersionConflict is returned when a compare-and-swap write lost to a
	// concurrent writer.
	ErrVersionConflict = errors.New("profile version conflict")
	// ErrValidation marks malformed user input such as birth data.
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExceeded marks a free-tier quota denial.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUpstreamUnavailable marks an AI or persistence dependency failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStateCorruption marks a profile whose stage disagrees with its data.
	ErrStateCorruption = errors.New("profile state corrupted")
)
