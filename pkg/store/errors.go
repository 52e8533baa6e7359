package store

import "errors"

// Sentinel errors for Result Store operations.
var (
	// ErrLockTimeout indicates the advisory file lock could not be acquired
	// within the configured timeout.
	ErrLockTimeout = errors.New("result store: lock acquisition timed out")

	// ErrInstanceNotFound indicates a requested instance has no record.
	ErrInstanceNotFound = errors.New("result store: instance not found")
)
