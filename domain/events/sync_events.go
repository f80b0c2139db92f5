package events

import (
	"time"

	"whalefall/domain/sync"
)

// SessionCompletedEvent represents a batch sync session that finished its
// fan-out. Per-instance failures are visible on the records, not here.
type SessionCompletedEvent struct {
	Session   *sync.SyncSession
	Timestamp time.Time
}

// SessionFailedEvent represents a session aborted by an internal
// orchestration fault.
type SessionFailedEvent struct {
	Session   *sync.SyncSession
	Error     string
	Timestamp time.Time
}

// SessionCancelledEvent represents a session cancelled by an operator.
type SessionCancelledEvent struct {
	Session   *sync.SyncSession
	Timestamp time.Time
}

// InstanceSyncFinishedEvent represents one instance record reaching a
// terminal state within a session.
type InstanceSyncFinishedEvent struct {
	Record    *sync.SyncInstanceRecord
	Timestamp time.Time
}
