package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrPatientIDRequired indicates the patient identifier is empty.
	ErrPatientIDRequired = errors.New("patient id is required")

	// ErrPatientNameRequired indicates the patient name is empty.
	ErrPatientNameRequired = errors.New("patient name is required")

	// ErrInvalidSex indicates a sex code outside the DICOM enumerated set.
	ErrInvalidSex = errors.New("invalid sex: must be 'M', 'F' or 'O'")

	// ErrInvalidBirthDate indicates a birth date that is not a DICOM date.
	ErrInvalidBirthDate = errors.New("invalid birth date: must be YYYYMMDD")

	// ErrInvalidTrimWindow indicates trim points violating 0 <= start < end <= duration.
	ErrInvalidTrimWindow = errors.New("invalid trim window: must satisfy 0 <= start < end <= duration")

	// ErrHostRequired indicates an endpoint without a host.
	ErrHostRequired = errors.New("host is required")

	// ErrInvalidPort indicates a port outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidAETitle indicates an application entity title violating the
	// allowed shape (1-16 characters: letters, digits, space, underscore).
	ErrInvalidAETitle = errors.New("invalid AE title: 1-16 characters, alphanumeric, space or underscore")

	// ErrInvalidTimeout indicates a non-positive endpoint timeout.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")
)
