package store

import "errors"

var (
	// ErrNotFound reports that a lazily-created resource (peer, session)
	// does not exist yet. Callers treat it as a first-use signal.
	ErrNotFound = errors.New("store resource not found")

	// ErrNoCredential reports that no API credential was configured, so
	// every remote operation will be refused locally.
	ErrNoCredential = errors.New("store credential not configured")
)
