package simulator

import (
	"errors"
	"fmt"
)

// SimError is a custom error type for simulation errors
type SimError struct {
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return SimError{Message: fmt.Sprintf("invalid config: %s", msg)}
}

// Setup failures. These abort trial initialization and are never tolerated at
// runtime.
var (
	ErrMissingCoefficient = errors.New("missing coefficient")
	ErrInvalidRate        = errors.New("invalid rate")
	ErrMalformedDuration  = errors.New("malformed duration")
	ErrInvalidStacks      = errors.New("invalid stack limit")
	ErrUnknownContent     = errors.New("unknown content identifier")
	ErrDuplicateContent   = errors.New("content identifier already registered")
	ErrRegistryFrozen     = errors.New("registry is frozen")
)

// SetupError describes a fatal failure while wiring an effect for an actor.
//
// Content names the content identifier being initialized (empty for kernel
// objects built outside the registry), Field names the offending parameter.
type SetupError struct {
	Content string
	Field   string
	Err     error
}

func (e *SetupError) Error() string {
	switch {
	case e.Content != "" && e.Field != "":
		return fmt.Sprintf("setup %s: %s: %v", e.Content, e.Field, e.Err)
	case e.Content != "":
		return fmt.Sprintf("setup %s: %v", e.Content, e.Err)
	case e.Field != "":
		return fmt.Sprintf("setup: %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("setup: %v", e.Err)
	}
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupError reports whether err (or anything it wraps) is a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

func setupErr(field string, err error, format string, args ...any) *SetupError {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	return &SetupError{Field: field, Err: err}
}

// precondition panics when a caller breaks an API contract. These are
// programming errors and are not meant to be recovered.
func precondition(ok bool, format string, args ...any) {
	if !ok {
		panic("BUG: " + fmt.Sprintf(format, args...))
	}
}
