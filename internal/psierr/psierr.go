// Package psierr defines the error kinds the ULPSI server and client surface
// to callers, per the error handling design: config mismatches and internal
// invariant violations are fatal, transport errors are per-request fatal,
// and input encoding errors are collected rather than aborting preprocessing
// on the first bad item.
package psierr

import "fmt"

// Kind classifies an error for the caller, independent of its message.
type Kind int

const (
	// ConfigMismatch: params received differ from params compiled. Fatal,
	// surfaces at connection setup.
	ConfigMismatch Kind = iota
	// InputEncoding: an item/label cannot be chunked without a reserved
	// value, or the server set contains a duplicate item.
	InputEncoding
	// CuckooFailure: client-side eviction attempts exhausted without a
	// placement.
	CuckooFailure
	// Transport: dropped connections, deserialization failures.
	Transport
	// Internal: invariant violations. Indicates a bug.
	Internal
)

func (k Kind) String() string {
	switch k {
	case ConfigMismatch:
		return "config_mismatch"
	case InputEncoding:
		return "input_encoding"
	case CuckooFailure:
		return "cuckoo_failure"
	case Transport:
		return "transport"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on it
// with errors.As without parsing messages.
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

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// As is a thin re-export point so callers need only import psierr for the
// common case of testing Kind; it walks the single-error Unwrap chain
// itself rather than calling the standard errors.As.
func As(err error, target **Error) bool {
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
