package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the backend. Handlers map these onto HTTP
// status classes: ErrNotSupported and validation failures are 400-class,
// ErrSessionNotFound is 404-class. Neither is ever treated as a server fault.
var (
	// ErrNotSupported signals a capability gap in a provider variant.
	ErrNotSupported = errors.New("operation not supported by this provider")

	// ErrSessionNotFound signals an unknown or already expired session id.
	ErrSessionNotFound = errors.New("session not found")
)

// RepositoryUnavailableError is returned when a fetcher cannot be
// constructed: bad URL, failed clone, or failed authentication. It is fatal
// to that construction attempt only.
type RepositoryUnavailableError struct {
	Target string
	Err    error
}

func (e *RepositoryUnavailableError) Error() string {
	return fmt.Sprintf("repository unavailable: %s: %v", e.Target, e.Err)
}

func (e *RepositoryUnavailableError) Unwrap() error {
	return e.Err
}
