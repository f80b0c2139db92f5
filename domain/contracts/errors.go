package contracts

import "errors"

// Common errors for domain contracts
var (
	// ErrSessionNotFound occurs when a session ID does not exist in storage.
	ErrSessionNotFound = errors.New("sync session not found")

	// ErrRecordNotFound occurs when an instance record ID does not exist.
	ErrRecordNotFound = errors.New("sync instance record not found")

	// ErrInstanceNotFound occurs when an instance ID does not exist.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrNoCollector occurs when no collector is registered for a vendor.
	ErrNoCollector = errors.New("no collector registered for db type")
)
