package kv

import "errors"

// Status is the semantic outcome of one operation, independent of any wire
// format. The transport layer maps it to protocol codes.
type Status int

const (
	// StatusOK — the operation succeeded.
	StatusOK Status = iota
	// StatusBadRequest — missing or malformed key/value; rejected before any
	// lock or connection was touched.
	StatusBadRequest
	// StatusNotFound — the key is absent from the authoritative store.
	StatusNotFound
	// StatusUnavailable — no backing-store capacity (pool closed, dispatcher
	// shut down, or acquisition timed out).
	StatusUnavailable
	// StatusInternal — unexpected backing-store failure.
	StatusInternal
)

// String returns a stable label for logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Result is the status/body pair handed back to the transport layer.
type Result struct {
	Status Status
	Value  string // payload of a successful read; empty otherwise
	Err    error  // cause for non-OK, non-NotFound outcomes
}

// Input validation errors.
var (
	ErrMissingKey   = errors.New("missing key parameter")
	ErrBadKey       = errors.New("key must be an integer")
	ErrMissingValue = errors.New("missing value parameter")
)
