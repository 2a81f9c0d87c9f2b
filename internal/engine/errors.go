package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cohortgen/cohortgen/internal/person"
)

// FailureKind categorizes patient-scoped simulation failures.
type FailureKind string

const (
	// FailModuleReference indicates a submodule call named an unknown module.
	FailModuleReference FailureKind = "module_reference"

	// FailTransition indicates a conditional transition matched no predicate
	// and declared no default.
	FailTransition FailureKind = "transition"

	// FailStuckModule indicates an instance exhausted its per-tick step
	// budget, usually a zero-duration cycle with no exit.
	FailStuckModule FailureKind = "stuck_module"

	// FailMalformedDistribution indicates distributed weights that cannot be
	// treated as probabilities under the configured policy.
	FailMalformedDistribution FailureKind = "malformed_distribution"

	// FailAttributeType indicates a predicate or action read an attribute
	// stored with a different type.
	FailAttributeType FailureKind = "attribute_type"
)

// SimError is a patient-scoped simulation failure. It terminates only the
// offending patient and carries enough context to reproduce the failure:
// the module and state being evaluated, the simulated time, and the
// patient index whose seed derivation replays the exact lifetime.
type SimError struct {
	Kind    FailureKind
	Module  string
	State   string
	Time    time.Time
	Index   int
	Message string

	// Recent holds the most recently visited states when a budget ran out,
	// oldest first. Empty for other kinds.
	Recent []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *SimError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: patient %d", e.Kind, e.Index)
	if e.Module != "" {
		fmt.Fprintf(&b, ", module %q", e.Module)
	}
	if e.State != "" {
		fmt.Fprintf(&b, ", state %q", e.State)
	}
	if !e.Time.IsZero() {
		fmt.Fprintf(&b, ", at %s", e.Time.Format("2006-01-02"))
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Recent) > 0 {
		fmt.Fprintf(&b, " (recent states: %s)", strings.Join(e.Recent, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *SimError) Unwrap() error {
	return e.Err
}

// AsSimError extracts a SimError from a possibly wrapped error.
func AsSimError(err error) (*SimError, bool) {
	var se *SimError
	ok := errors.As(err, &se)
	return se, ok
}

// IsStuckModule reports whether err is a step budget exhaustion.
func IsStuckModule(err error) bool {
	se, ok := AsSimError(err)
	return ok && se.Kind == FailStuckModule
}

// IsTransitionError reports whether err is an unmatched conditional.
func IsTransitionError(err error) bool {
	se, ok := AsSimError(err)
	return ok && se.Kind == FailTransition
}

// Classify maps an error to its failure kind. Attribute type mismatches
// bubbling up from predicate or action evaluation classify as
// FailAttributeType even when not yet wrapped in a SimError.
func Classify(err error) FailureKind {
	if se, ok := AsSimError(err); ok {
		return se.Kind
	}
	var typeErr *person.AttributeTypeError
	if errors.As(err, &typeErr) {
		return FailAttributeType
	}
	return ""
}

// ConfigError is a run-fatal misconfiguration: an empty module set, an
// invalid module graph, or an unusable run parameter. Unlike SimError it
// aborts the whole run before any patient simulates.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
