// Package credstore implements the credential store consulted by the session
// gateway: a lookup-and-update key/value store keyed by username, with
// bcrypt-hashed passwords.
package credstore

import (
	"context"
	"errors"
)

var (
	// ErrExists is returned by Register when the username is taken.
	ErrExists = errors.New("credstore: username already registered")

	// ErrUnknownUser is returned by Verify for an unregistered username.
	ErrUnknownUser = errors.New("credstore: unknown username")

	// ErrInvalidCredentials is returned by Verify on a password mismatch.
	ErrInvalidCredentials = errors.New("credstore: invalid credentials")
)

// Store verifies and registers user credentials. Implementations must be
// safe for concurrent use.
type Store interface {
	Register(ctx context.Context, username, password string) error
	Verify(ctx context.Context, username, password string) error
	Close() error
}
