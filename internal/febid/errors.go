package febid

import (
	"errors"
	"fmt"
)

// Engine error classes. None of them is retryable: configuration errors are
// fixed by the operator, geometry and coordinate errors end the run.
var (
	// ErrConfiguration marks invalid or numerically unstable parameters.
	ErrConfiguration = errors.New("febid: invalid configuration")

	// ErrInvalidGeometry marks growth past the allocated height or a beam
	// footprint that misses the grid.
	ErrInvalidGeometry = errors.New("febid: invalid geometry")

	// ErrInvalidCoordinate marks an indexing invariant violation.
	ErrInvalidCoordinate = errors.New("febid: invalid coordinate")
)

// ConfigurationError reports the offending parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// GeometryError carries the cell and height at which the geometry broke.
type GeometryError struct {
	Coord  Coord
	Height int
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%v: %s at %s (height %d)", ErrInvalidGeometry, e.Reason, e.Coord, e.Height)
}

func (e *GeometryError) Unwrap() error { return ErrInvalidGeometry }

// CoordinateError is returned when an internal index leaves the grid.
type CoordinateError struct {
	Coord  Coord
	Reason string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%v: %s at %s", ErrInvalidCoordinate, e.Reason, e.Coord)
}

func (e *CoordinateError) Unwrap() error { return ErrInvalidCoordinate }
