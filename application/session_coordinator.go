package application

import (
	"context"
	"errors"
	"fmt"

	"whalefall/domain/contracts"
	syncdom "whalefall/domain/sync"
	"whalefall/logging"
)

// SessionCoordinator owns the sync session state machine. All status
// transitions go through here and are compare-and-set at the repository, so
// duplicate signals from retried callbacks and concurrent workers collapse
// into no-ops instead of races. Workers only ever touch their own record.
type SessionCoordinator struct {
	repo    contracts.SessionRepository
	factory *syncdom.SessionFactory
	logger  *logging.Logger
}

// NewSessionCoordinator creates a session coordinator.
func NewSessionCoordinator(repo contracts.SessionRepository) *SessionCoordinator {
	return &SessionCoordinator{
		repo:    repo,
		factory: &syncdom.SessionFactory{},
		logger:  logging.Default().WithComponent("session_coordinator"),
	}
}

// CreateSession allocates a fresh session in running state with
// TotalInstances zero. The caller sets the total once the instance set is
// known, before fan-out begins.
func (c *SessionCoordinator) CreateSession(ctx context.Context, syncType syncdom.SyncType, syncCategory syncdom.SyncCategory, createdBy string) (*syncdom.SyncSession, error) {
	session := c.factory.NewSession(syncType, syncCategory, createdBy)
	if err := c.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create sync session: %w", err)
	}

	c.logger.Sync("Sync session created", session.SessionID)
	return session, nil
}

// GetSession retrieves a session by ID.
func (c *SessionCoordinator) GetSession(ctx context.Context, sessionID string) (*syncdom.SyncSession, error) {
	return c.repo.GetSession(ctx, sessionID)
}

// ListRecentSessions returns the most recent sessions, newest first.
func (c *SessionCoordinator) ListRecentSessions(ctx context.Context, limit int) ([]*syncdom.SyncSession, error) {
	return c.repo.ListRecentSessions(ctx, limit)
}

// GetInstanceRecord retrieves a single instance record by ID.
func (c *SessionCoordinator) GetInstanceRecord(ctx context.Context, recordID string) (*syncdom.SyncInstanceRecord, error) {
	return c.repo.GetInstanceRecord(ctx, recordID)
}

// ListInstanceRecords returns a session's per-instance records.
func (c *SessionCoordinator) ListInstanceRecords(ctx context.Context, sessionID string) ([]*syncdom.SyncInstanceRecord, error) {
	return c.repo.ListInstanceRecords(ctx, sessionID)
}

// SetTotalInstances persists the fan-out size on the session.
func (c *SessionCoordinator) SetTotalInstances(ctx context.Context, sessionID string, total int) error {
	return c.repo.SetTotalInstances(ctx, sessionID, total)
}

// AddInstanceRecords bulk-creates pending records, one per instance,
// preserving the input order.
func (c *SessionCoordinator) AddInstanceRecords(ctx context.Context, sessionID string, instanceIDs []string) ([]*syncdom.SyncInstanceRecord, error) {
	records := c.factory.NewInstanceRecords(sessionID, instanceIDs)
	if err := c.repo.CreateInstanceRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to create instance records: %w", err)
	}
	return records, nil
}

// StartInstanceSync transitions a record from pending to running. Returns
// false when the record is already past pending; callers must tolerate
// duplicate start signals.
func (c *SessionCoordinator) StartInstanceSync(ctx context.Context, recordID string) (bool, error) {
	return c.repo.TransitionInstanceRecord(ctx, recordID,
		syncdom.RecordStatusPending, syncdom.RecordStatusRunning, 0, "", "")
}

// CompleteInstanceSync transitions a record to completed. No-op when the
// record is already terminal.
func (c *SessionCoordinator) CompleteInstanceSync(ctx context.Context, recordID string, itemsSynced int, details string) (bool, error) {
	return c.repo.TransitionInstanceRecord(ctx, recordID,
		syncdom.RecordStatusRunning, syncdom.RecordStatusCompleted, itemsSynced, "", details)
}

// FailInstanceSync transitions a record to failed with an error message.
// No-op when the record is already terminal.
func (c *SessionCoordinator) FailInstanceSync(ctx context.Context, recordID string, errorMessage, details string) (bool, error) {
	return c.repo.TransitionInstanceRecord(ctx, recordID,
		syncdom.RecordStatusRunning, syncdom.RecordStatusFailed, 0, errorMessage, details)
}

// CompleteSession marks a running session completed. Per-instance failures
// do not block this: the batch finished, failures stay visible per record.
func (c *SessionCoordinator) CompleteSession(ctx context.Context, sessionID string) (bool, error) {
	ok, err := c.repo.TransitionSession(ctx, sessionID,
		syncdom.SessionStatusRunning, syncdom.SessionStatusCompleted, "")
	if ok {
		c.logger.Sync("Sync session completed", sessionID)
	}
	return ok, err
}

// FailSession marks a running session failed. Reserved for internal
// orchestration faults, never per-instance collector failures.
func (c *SessionCoordinator) FailSession(ctx context.Context, sessionID, errorMessage string) (bool, error) {
	ok, err := c.repo.TransitionSession(ctx, sessionID,
		syncdom.SessionStatusRunning, syncdom.SessionStatusFailed, errorMessage)
	if ok {
		c.logger.SyncError("Sync session failed", errors.New(errorMessage), sessionID)
	}
	return ok, err
}

// CancelSession marks a running session cancelled. Returns false on an
// already-terminal session, leaving its CompletedAt untouched. Cancellation
// is cooperative: workers observe it before starting the next instance.
func (c *SessionCoordinator) CancelSession(ctx context.Context, sessionID string) (bool, error) {
	ok, err := c.repo.TransitionSession(ctx, sessionID,
		syncdom.SessionStatusRunning, syncdom.SessionStatusCancelled, "")
	if ok {
		c.logger.Sync("Sync session cancelled", sessionID)
	}
	return ok, err
}

// IsCancelled reports whether the session has been cancelled.
func (c *SessionCoordinator) IsCancelled(ctx context.Context, sessionID string) (bool, error) {
	session, err := c.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.Status == syncdom.SessionStatusCancelled, nil
}

// GetProgressPercentage computes batch progress as the share of records in a
// terminal state.
func (c *SessionCoordinator) GetProgressPercentage(ctx context.Context, sessionID string) (float64, error) {
	session, err := c.repo.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	terminal, err := c.repo.CountTerminalRecords(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return session.ProgressPercentage(terminal), nil
}
