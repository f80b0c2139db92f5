package contracts

import (
	"context"

	"whalefall/domain/sync"
)

// SessionRepository defines durable storage for sync sessions and their
// per-instance records. Status transitions are compare-and-set on the
// current status so that duplicate or concurrent transition attempts on the
// same row become no-ops at the store, not races.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *sync.SyncSession) error
	GetSession(ctx context.Context, sessionID string) (*sync.SyncSession, error)
	ListRecentSessions(ctx context.Context, limit int) ([]*sync.SyncSession, error)

	// SetTotalInstances persists the instance count once the fan-out set is
	// known, before any record starts.
	SetTotalInstances(ctx context.Context, sessionID string, total int) error

	// TransitionSession atomically moves a session from one status to
	// another, stamping CompletedAt for terminal targets. Returns false when
	// the session was not in the expected status.
	TransitionSession(ctx context.Context, sessionID string, from, to sync.SessionStatus, errorMessage string) (bool, error)

	CreateInstanceRecords(ctx context.Context, records []*sync.SyncInstanceRecord) error
	GetInstanceRecord(ctx context.Context, recordID string) (*sync.SyncInstanceRecord, error)
	ListInstanceRecords(ctx context.Context, sessionID string) ([]*sync.SyncInstanceRecord, error)

	// TransitionInstanceRecord atomically moves a record between statuses,
	// writing items synced, error message, and details as appropriate.
	// Returns false when the record was not in the expected status.
	TransitionInstanceRecord(ctx context.Context, recordID string, from, to sync.RecordStatus, itemsSynced int, errorMessage, details string) (bool, error)

	// CountTerminalRecords returns how many of a session's records reached
	// completed or failed, for progress computation.
	CountTerminalRecords(ctx context.Context, sessionID string) (int, error)
}
