// Package errors provides structured error handling for the render loop.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindConfiguration indicates a mount that cannot be constructed.
	KindConfiguration
	// KindDivergence indicates a render that failed to stabilize.
	KindDivergence
	// KindPhase indicates a failure raised inside a render phase.
	KindPhase
	// KindContract indicates a violated calling contract, such as an
	// unbalanced batch notification.
	KindContract
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindDivergence:
		return "divergence"
	case KindPhase:
		return "phase"
	case KindContract:
		return "contract"
	default:
		return "unknown"
	}
}

// Sentinel errors wrapped by the structured types below.
var (
	ErrNoStore   = errors.New("mount requires a store")
	ErrNoWidget  = errors.New("mount requires a widget")
	ErrUnmounted = errors.New("binding is unmounted")
)

// DriftError represents a structured error raised by the render loop.
type DriftError struct {
	// Op is the operation that failed (e.g., "mount.Mount").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Binding is the diagnostic name of the root binding, if applicable.
	Binding string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *DriftError) Error() string {
	if e.Binding != "" {
		return fmt.Sprintf("%s [%s] binding=%s: %v", e.Op, e.Kind, e.Binding, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *DriftError) Unwrap() error {
	return e.Err
}

// ConfigurationError describes why a binding could not be mounted.
type ConfigurationError struct {
	// Reason is a human readable description.
	Reason string
	// Err is the sentinel or underlying cause.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid mount configuration: %s: %v", e.Reason, e.Err)
	}
	return "invalid mount configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DivergenceError reports a pass whose explore loop kept invalidating itself
// until the retry cap was reached. The pass proceeds with the last result.
type DivergenceError struct {
	// Name is the diagnostic name of the binding.
	Name string
	// Attempts is the number of explore attempts performed.
	Attempts int
	// Nested is set when the divergence came from nested synchronous
	// updates rather than explore retries.
	Nested bool
}

func (e *DivergenceError) Error() string {
	if e.Nested {
		return fmt.Sprintf("%s: nested updates exceeded %d levels, update dropped", e.Name, e.Attempts)
	}
	return fmt.Sprintf("%s: explore still dirty after %d attempts", e.Name, e.Attempts)
}

// PhaseError represents a failure raised inside one of the render phases.
type PhaseError struct {
	// Phase is the phase name: explore, prepare, render, commit or cleanup.
	Phase string
	// Instance is the type name of the instance being rendered.
	Instance string
	// Recovered is the panic value (nil for regular errors).
	Recovered any
	// Err is the underlying error (nil for panics).
	Err error
	// StackTrace contains the call stack at the time of the failure.
	StackTrace string
	// Timestamp is when the failure occurred.
	Timestamp time.Time
}

func (e *PhaseError) Error() string {
	where := e.Phase
	if e.Instance != "" {
		where = e.Instance + "." + e.Phase + "()"
	}
	if e.Recovered != nil {
		return fmt.Sprintf("panic in %s: %v", where, e.Recovered)
	}
	if e.Err != nil {
		return fmt.Sprintf("error in %s: %v", where, e.Err)
	}
	return fmt.Sprintf("unknown error in %s", where)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives errors reported by the render loop.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *DriftError)
	// HandlePhaseError is called when a host recovers a failed phase.
	HandlePhaseError(err *PhaseError)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }
