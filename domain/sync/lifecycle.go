package sync

import "time"

// SessionLifecycle enforces the session and record state machines. All
// transition methods return whether the transition happened: an attempt on
// an already-terminal object is a no-op, not an error, so retried callbacks
// and duplicate signals stay idempotent.
type SessionLifecycle struct{}

// CompleteSession transitions a running session to completed.
func (sl *SessionLifecycle) CompleteSession(session *SyncSession) bool {
	if !session.IsRunning() {
		return false
	}
	session.Status = SessionStatusCompleted
	now := time.Now()
	session.CompletedAt = &now
	return true
}

// FailSession transitions a running session to failed. Reserved for internal
// orchestration faults; per-instance collector failures never reach here.
func (sl *SessionLifecycle) FailSession(session *SyncSession, errorMsg string) bool {
	if !session.IsRunning() {
		return false
	}
	session.Status = SessionStatusFailed
	session.ErrorMessage = errorMsg
	now := time.Now()
	session.CompletedAt = &now
	return true
}

// CancelSession transitions a running session to cancelled. A session that
// already reached a terminal state is left untouched, including CompletedAt.
func (sl *SessionLifecycle) CancelSession(session *SyncSession) bool {
	if !session.IsRunning() {
		return false
	}
	session.Status = SessionStatusCancelled
	now := time.Now()
	session.CompletedAt = &now
	return true
}

// StartRecord transitions a pending record to running.
func (sl *SessionLifecycle) StartRecord(record *SyncInstanceRecord) bool {
	if record.Status != RecordStatusPending {
		return false
	}
	record.Status = RecordStatusRunning
	now := time.Now()
	record.StartedAt = &now
	return true
}

// CompleteRecord transitions a running record to completed.
func (sl *SessionLifecycle) CompleteRecord(record *SyncInstanceRecord, itemsSynced int, details string) bool {
	if record.Status != RecordStatusRunning {
		return false
	}
	record.Status = RecordStatusCompleted
	record.ItemsSynced = itemsSynced
	record.SyncDetails = details
	now := time.Now()
	record.CompletedAt = &now
	return true
}

// FailRecord transitions a running record to failed with an error message.
func (sl *SessionLifecycle) FailRecord(record *SyncInstanceRecord, errorMsg, details string) bool {
	if record.Status != RecordStatusRunning {
		return false
	}
	record.Status = RecordStatusFailed
	record.ErrorMessage = errorMsg
	record.SyncDetails = details
	now := time.Now()
	record.CompletedAt = &now
	return true
}
