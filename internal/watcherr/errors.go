// Package watcherr distinguishes the error kinds the watch-rule engine can
// raise, so callers (the scheduler, the HTTP handlers) can decide whether to
// retry, quarantine, or reject outright instead of pattern-matching on error
// strings.
package watcherr

import "fmt"

// Kind classifies an error raised by the watch-rule engine.
type Kind int

const (
	// Validation means a rule or sample was rejected before it was ever
	// stored; the caller must fix the request and resubmit.
	Validation Kind = iota
	// NotFound means the named rule does not exist.
	NotFound
	// Transient means a dependency (sample store, persistence port) was
	// temporarily unavailable; the scheduler retries on the next tick.
	Transient
	// Corrupt means a persisted rule failed to parse; it is quarantined
	// until an operator intervenes.
	Corrupt
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Transient:
		return "transient"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) is a watcherr.Error of kind.
func Is(err error, kind Kind) bool {
	var we *Error
	if !asError(err, &we) {
		return false
	}
	return we.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
