package server

import "errors"

// Error taxonomy for client-facing failures. All of these are local to the
// requesting session: they produce an error event for that session and never
// touch other sessions' state.
var (
	// ErrValidation marks a malformed or incomplete payload.
	ErrValidation = errors.New("invalid request")

	// ErrAuthRequired marks an event that needs a bound identity first.
	ErrAuthRequired = errors.New("login required")

	// ErrNotFound marks a missing room or absent user.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a room-name collision on create.
	ErrConflict = errors.New("already exists")

	// ErrForbidden marks a join attempt by a banned identity.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable marks a credential-store failure. It is surfaced to the
	// client as a generic auth failure and never leaks the internal cause.
	ErrUnavailable = errors.New("service unavailable")
)
