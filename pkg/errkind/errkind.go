// Package errkind classifies pipeline failures so the coordinator can
// decide per error whether to skip an entity, retry, or abort the batch.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the failure category of a pipeline error
type Kind int

const (
	// Validation marks a malformed or incomplete input record.
	// The entity is skipped for the cycle.
	Validation Kind = iota + 1

	// InsufficientData marks a fixture no model can estimate.
	// The fixture is skipped and retried next cycle.
	InsufficientData

	// Transient marks an unreachable or rate-limited external collaborator.
	// The call is retried with backoff; exhaustion fails only this fixture.
	Transient

	// StateConflict marks an optimistic-version mismatch on a store write.
	// The caller re-reads and retries the transition once.
	StateConflict

	// Permanent marks an auth or configuration failure.
	// The whole batch run aborts.
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case InsufficientData:
		return "insufficient_data"
	case Transient:
		return "transient"
	case StateConflict:
		return "state_conflict"
	case Permanent:
		return "permanent"
	}
	return "unknown"
}

// Error couples a failure kind with the wrapped cause
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "store.put"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a formatted message
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error, preserving it for errors.Is/As.
// A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind, or 0 for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind anywhere in its chain
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsValidation reports a malformed-input failure
func IsValidation(err error) bool { return Is(err, Validation) }

// IsInsufficientData reports that no model could produce an estimate
func IsInsufficientData(err error) bool { return Is(err, InsufficientData) }

// IsTransient reports a retryable external failure
func IsTransient(err error) bool { return Is(err, Transient) }

// IsStateConflict reports a CAS version mismatch
func IsStateConflict(err error) bool { return Is(err, StateConflict) }

// IsPermanent reports a batch-aborting failure
func IsPermanent(err error) bool { return Is(err, Permanent) }
