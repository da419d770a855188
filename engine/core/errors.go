package core

import (
	"errors"
	"fmt"
)

// Domain error kinds shared by every subsystem. Handlers map these to HTTP
// statuses; background workers map them to task ERROR records.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrAlreadyLoaded = errors.New("already loaded")
	ErrNotLoaded     = errors.New("not loaded")
	ErrValidation    = errors.New("validation failed")
	ErrUnsupported   = errors.New("unsupported kind")
	ErrAdapter       = errors.New("adapter failure")
	ErrIntegrity     = errors.New("integrity error")
)

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// AlreadyExistsf wraps ErrAlreadyExists with a formatted detail message.
func AlreadyExistsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, fmt.Sprintf(format, args...))
}

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unsupportedf wraps ErrUnsupported with a formatted detail message.
func Unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// NewAlreadyLoaded reports a live-instance collision for (kind, id).
func NewAlreadyLoaded(kind, id string) error {
	return fmt.Errorf("%w: %s instance %q", ErrAlreadyLoaded, kind, id)
}

// NewNotLoaded reports a missing live instance for (kind, id).
func NewNotLoaded(kind, id string) error {
	return fmt.Errorf("%w: %s instance %q", ErrNotLoaded, kind, id)
}

// IsNotFound reports whether err is a missing-resource error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotLoaded)
}

// AdapterErr wraps an upstream provider failure with its origin.
func AdapterErr(origin string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrAdapter, origin, err)
}
